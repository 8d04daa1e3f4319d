package database

import "time"

// Session is a persisted browser session. Data holds the JSON-encoded
// session payload (credentials captured by basic auth and the "ssh"
// descriptor).
type Session struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Data      string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
