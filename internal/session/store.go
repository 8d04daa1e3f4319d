package session

import (
	"sync"
	"time"
)

// Data is everything kept server-side for one browser session.
type Data struct {
	// Username and Password are captured by HTTP basic auth when no default
	// credential is configured.
	Username string `json:"username,omitempty"`
	Password string `json:"userpassword,omitempty"`
	// SSH is the descriptor handed to the terminal bridge.
	SSH *Descriptor `json:"ssh,omitempty"`
}

func (d *Data) clone() *Data {
	if d == nil {
		return nil
	}
	out := *d
	out.SSH = d.SSH.Clone()
	return &out
}

// Store persists session data by session ID. Implementations return copies
// from Get; changes only take effect through Save.
type Store interface {
	Get(id string) (*Data, bool)
	Save(id string, data *Data, ttl time.Duration) error
	Delete(id string) error
	// Cleanup removes expired sessions and reports how many were dropped.
	Cleanup() (int, error)
}

type memoryEntry struct {
	data      *Data
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(id string) (*Data, bool) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || s.now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data.clone(), true
}

func (s *MemoryStore) Save(id string, data *Data, ttl time.Duration) error {
	s.mu.Lock()
	s.sessions[id] = memoryEntry{data: data.clone(), expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Cleanup() (int, error) {
	now := s.now()
	removed := 0
	s.mu.Lock()
	for id, entry := range s.sessions {
		if now.After(entry.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
