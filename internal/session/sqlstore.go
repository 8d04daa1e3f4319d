package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/AMFTech512/sillyctf-webssh2/internal/database"
)

// SQLStore keeps sessions in the sessions table so they survive restarts.
type SQLStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Get(id string) (*Data, bool) {
	var row database.Session
	err := s.db.Where("id = ? AND expires_at > ?", id, s.now()).First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("[session] load %s: %v", shortID(id), err)
		}
		return nil, false
	}
	var data Data
	if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
		log.Printf("[session] decode %s: %v", shortID(id), err)
		return nil, false
	}
	return &data, true
}

func (s *SQLStore) Save(id string, data *Data, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	row := database.Session{ID: id, Data: string(raw), ExpiresAt: s.now().Add(ttl)}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "expires_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(id string) error {
	if err := s.db.Delete(&database.Session{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLStore) Cleanup() (int, error) {
	res := s.db.Where("expires_at <= ?", s.now()).Delete(&database.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// shortID keeps session IDs out of logs beyond a short prefix.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
