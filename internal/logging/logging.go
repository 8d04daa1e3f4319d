package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/AMFTech512/sillyctf-webssh2/internal/config"
)

var (
	logFile *os.File
	mu      sync.Mutex
)

// Init tees the standard logger to stdout and config.Cfg.LogPath. With no
// path configured the logger is left writing to stderr.
// Must be called after config.LoadSettings().
func Init() {
	path := config.Cfg.LogPath
	if path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}

	mu.Lock()
	logFile = f
	mu.Unlock()
	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("Logging to file: %s", path)
}

// Close restores stderr logging and closes the log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	log.SetOutput(os.Stderr)
	err := logFile.Close()
	logFile = nil
	return err
}
