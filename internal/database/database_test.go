package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/AMFTech512/sillyctf-webssh2/internal/config"
)

func TestOpen_MigratesSessions(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	s := Session{ID: "abc", Data: `{"ssh":null}`, ExpiresAt: time.Now().Add(time.Hour)}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("create session: %v", err)
	}

	var loaded Session
	if err := db.First(&loaded, "id = ?", "abc").Error; err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded.Data != s.Data {
		t.Errorf("data = %q, want %q", loaded.Data, s.Data)
	}
	if loaded.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestInit_CreatesDatabaseFile(t *testing.T) {
	prev := config.Cfg
	config.Cfg.DatabasePath = filepath.Join(t.TempDir(), "nested", "webssh.db")
	t.Cleanup(func() {
		Close()
		DB = nil
		config.Cfg = prev
	})

	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if DB == nil {
		t.Fatal("expected DB to be set")
	}
	if err := DB.Exec("SELECT 1").Error; err != nil {
		t.Errorf("query: %v", err)
	}
}
