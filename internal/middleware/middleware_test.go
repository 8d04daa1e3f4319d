package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/AMFTech512/sillyctf-webssh2/internal/config"
	"github.com/AMFTech512/sillyctf-webssh2/internal/session"
)

type fakeGate struct{ accepting bool }

func (g *fakeGate) Accepting() bool { return g.accepting }

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestShutdownGuard(t *testing.T) {
	gate := &fakeGate{accepting: true}
	var called bool
	h := ShutdownGuard(gate)(okHandler(&called))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ssh", nil))
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("accepting: code=%d called=%v", rec.Code, called)
	}

	gate.accepting = false
	called = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ssh", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
	if rec.Body.String() != ShutdownMessage {
		t.Errorf("body = %q", rec.Body.String())
	}
	if called {
		t.Error("next handler ran while shutting down")
	}
}

func newTestManager() (*session.Manager, *session.MemoryStore) {
	store := session.NewMemoryStore()
	return session.NewManager(store, config.Defaults().Session), store
}

func TestBasicAuth_DefaultUserSkipsChallenge(t *testing.T) {
	mgr, _ := newTestManager()
	var called bool
	h := mgr.Middleware(BasicAuth(true, mgr)(okHandler(&called)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ssh", nil))
	if rec.Code != http.StatusOK || !called {
		t.Fatalf("code=%d called=%v", rec.Code, called)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no session should be created without credentials")
	}
}

func TestBasicAuth_ChallengesWithoutCredentials(t *testing.T) {
	mgr, _ := newTestManager()
	var called bool
	h := mgr.Middleware(BasicAuth(false, mgr)(okHandler(&called)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/ssh", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
	if got := rec.Header().Get("WWW-Authenticate"); got != `Basic realm="WebSSH"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
	if called {
		t.Error("next handler ran without credentials")
	}
}

func TestBasicAuth_StoresCredentialsInSession(t *testing.T) {
	mgr, store := newTestManager()
	var seen *session.State
	h := mgr.Middleware(BasicAuth(false, mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = session.FromContext(r.Context())
	})))

	req := httptest.NewRequest("GET", "/ssh", nil)
	req.SetBasicAuth("ctf", "hunter2")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen == nil || seen.ID == "" {
		t.Fatal("session not saved")
	}
	data, ok := store.Get(seen.ID)
	if !ok || data.Username != "ctf" || data.Password != "hunter2" {
		t.Fatalf("stored = %+v", data)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != mgr.CookieName() {
		t.Fatalf("cookies = %v", cookies)
	}

	// A follow-up request with the cookie and new credentials updates the
	// same session and refreshes its cookie.
	req = httptest.NewRequest("GET", "/ssh", nil)
	req.AddCookie(cookies[0])
	req.SetBasicAuth("ctf", "correct-horse")
	rec = httptest.NewRecorder()
	firstID := seen.ID
	h.ServeHTTP(rec, req)

	if seen.ID != firstID {
		t.Errorf("session id changed: %s -> %s", firstID, seen.ID)
	}
	if data, _ := store.Get(firstID); data.Password != "correct-horse" {
		t.Errorf("password = %q", data.Password)
	}
	refreshed := rec.Result().Cookies()
	if len(refreshed) != 1 {
		t.Fatalf("cookies = %v, want one refreshed cookie", refreshed)
	}

	// Unchanged credentials leave the session and the cookie alone.
	req = httptest.NewRequest("GET", "/ssh", nil)
	req.AddCookie(refreshed[0])
	req.SetBasicAuth("ctf", "correct-horse")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen.ID != firstID {
		t.Errorf("refreshed cookie lost the session: %s -> %s", firstID, seen.ID)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("cookie set although nothing was saved")
	}
}

func newTestStatic() *StaticHandler {
	fsys := fstest.MapFS{
		"client.htm":      {Data: []byte("<html>client</html>"), ModTime: time.Unix(1700000000, 0)},
		"about.html":      {Data: []byte("about")},
		"webssh2.css":     {Data: []byte("body{}")},
		".env":            {Data: []byte("SECRET=1")},
		"js/.hidden.js":   {Data: []byte("x")},
		"js/webssh2.js":   {Data: []byte("console.log(1)")},
		"fonts/index.htm": {Data: []byte("index")},
	}
	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Sorry can't find that!", http.StatusNotFound)
	})
	h := NewStaticHandler(fsys, notFound)
	h.now = func() time.Time { return time.UnixMilli(1234567) }
	return h
}

func TestStaticHandler(t *testing.T) {
	h := newTestStatic()
	tests := []struct {
		name   string
		method string
		path   string
		code   int
		body   string
	}{
		{"exact file", "GET", "/client.htm", 200, "<html>client</html>"},
		{"htm fallback", "GET", "/client", 200, "<html>client</html>"},
		{"html fallback", "GET", "/about", 200, "about"},
		{"nested", "GET", "/js/webssh2.js", 200, "console.log(1)"},
		{"head", "HEAD", "/webssh2.css", 200, ""},
		{"dotfile", "GET", "/.env", 404, "Sorry can't find that!\n"},
		{"nested dotfile", "GET", "/js/.hidden.js", 404, "Sorry can't find that!\n"},
		{"directory", "GET", "/fonts/", 404, "Sorry can't find that!\n"},
		{"directory without slash", "GET", "/fonts", 404, "Sorry can't find that!\n"},
		{"root", "GET", "/", 404, "Sorry can't find that!\n"},
		{"missing", "GET", "/nope.js", 404, "Sorry can't find that!\n"},
		{"traversal", "GET", "/../client.htm", 200, "<html>client</html>"},
		{"post", "POST", "/client.htm", 404, "Sorry can't find that!\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if rec.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", rec.Body.String(), tt.body)
			}
		})
	}
}

func TestStaticHandler_Headers(t *testing.T) {
	h := newTestStatic()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/client.htm", nil))

	hdr := rec.Header()
	if got := hdr.Get("Cache-Control"); got != "public, max-age=1" {
		t.Errorf("Cache-Control = %q", got)
	}
	if got := hdr.Get("x-timestamp"); got != "1234567" {
		t.Errorf("x-timestamp = %q", got)
	}
	if got := hdr.Get("Strict-Transport-Security"); got != HSTSValue {
		t.Errorf("HSTS = %q", got)
	}
	if got := hdr.Get("ETag"); got != "" {
		t.Errorf("unexpected ETag %q", got)
	}
	if !strings.HasPrefix(hdr.Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", hdr.Get("Content-Type"))
	}
	if hdr.Get("Last-Modified") == "" {
		t.Error("Last-Modified missing")
	}
}
