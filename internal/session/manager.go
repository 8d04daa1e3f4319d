package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fernet/fernet-go"

	"github.com/AMFTech512/sillyctf-webssh2/internal/config"
)

// DescriptorKey is the session key the descriptor is stored under.
const DescriptorKey = "ssh"

// ErrNoSession is returned when a handler runs outside Manager.Middleware.
var ErrNoSession = errors.New("no session in request context")

type contextKey struct{}

// State is the session attached to one request. Handlers mutate Data and
// call Manager.Save to persist it.
type State struct {
	ID   string
	Data *Data

	// cookieSet is true once this request's response carries the cookie.
	cookieSet bool
}

// FromContext returns the session loaded by Manager.Middleware, or nil.
func FromContext(ctx context.Context) *State {
	st, _ := ctx.Value(contextKey{}).(*State)
	return st
}

// Manager issues session cookies and maps them to Store entries. The cookie
// carries the session ID sealed with a Fernet key derived from the
// configured secret, so a cookie is only honoured by servers sharing it.
type Manager struct {
	store      Store
	key        *fernet.Key
	cookieName string
	ttl        time.Duration

	// Secure marks issued cookies HTTPS-only.
	Secure bool
}

func NewManager(store Store, cfg config.SessionConfig) *Manager {
	k := fernet.Key(sha256.Sum256([]byte(cfg.Secret)))
	return &Manager{
		store:      store,
		key:        &k,
		cookieName: cfg.Name,
		ttl:        time.Duration(cfg.MaxAge) * time.Second,
	}
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string { return m.cookieName }

// Middleware loads the request's session into its context. Requests without
// a valid cookie get an empty, unsaved session; no cookie is issued until
// something is saved.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := m.load(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, st)))
	})
}

func (m *Manager) load(r *http.Request) *State {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil {
		return &State{Data: &Data{}}
	}
	id := m.open(cookie.Value)
	if id == "" {
		return &State{Data: &Data{}}
	}
	data, ok := m.store.Get(id)
	if !ok {
		return &State{Data: &Data{}}
	}
	return &State{ID: id, Data: data}
}

// Save persists st, allocating an ID on first save. When w is non-nil a
// freshly sealed cookie is set on the response, once per request, so the
// cookie's lifetime rolls forward together with the stored entry.
func (m *Manager) Save(w http.ResponseWriter, st *State) error {
	if st == nil {
		return ErrNoSession
	}
	if st.ID == "" {
		id, err := newSessionID()
		if err != nil {
			return fmt.Errorf("generate session id: %w", err)
		}
		st.ID = id
	}
	if err := m.store.Save(st.ID, st.Data, m.ttl); err != nil {
		return err
	}
	if w == nil || st.cookieSet {
		return nil
	}
	token, err := m.seal(st.ID)
	if err != nil {
		return fmt.Errorf("seal session cookie: %w", err)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	st.cookieSet = true
	return nil
}

// Destroy deletes the session and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, st *State) error {
	if st == nil || st.ID == "" {
		return nil
	}
	if err := m.store.Delete(st.ID); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{Name: m.cookieName, Value: "", Path: "/", MaxAge: -1})
	st.ID, st.Data, st.cookieSet = "", &Data{}, false
	return nil
}

// Bind derives a descriptor from cfg and stores it in the request's session
// under DescriptorKey. It does not open any connection.
func (m *Manager) Bind(w http.ResponseWriter, r *http.Request, cfg config.Config) (*Descriptor, error) {
	st := FromContext(r.Context())
	if st == nil {
		return nil, ErrNoSession
	}
	st.Data.SSH = Build(cfg)
	if err := m.Save(w, st); err != nil {
		return nil, fmt.Errorf("store descriptor: %w", err)
	}
	return st.Data.SSH, nil
}

// Cleanup sweeps expired sessions from the store.
func (m *Manager) Cleanup() {
	n, err := m.store.Cleanup()
	if err != nil {
		log.Printf("[session] cleanup failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[session] removed %d expired sessions", n)
	}
}

func (m *Manager) seal(id string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(id), m.key)
	if err != nil {
		return "", err
	}
	return string(tok), nil
}

// open returns the session ID inside token, or "" if the token was not
// sealed with this manager's key or is older than the session lifetime.
func (m *Manager) open(token string) string {
	id := fernet.VerifyAndDecrypt([]byte(token), m.ttl, []*fernet.Key{m.key})
	return string(id)
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
