package config

import (
	"bytes"
	"errors"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// captureLog redirects the standard logger for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(prev) })
	return &buf
}

func countErrors(buf *bytes.Buffer) int {
	n := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "ERROR") {
			n++
		}
	}
	return n
}

type bytesSource []byte

func (b bytesSource) Name() string          { return "inline" }
func (b bytesSource) Load() ([]byte, error) { return b, nil }

func TestResolve_NoSourceReturnsDefaults(t *testing.T) {
	buf := captureLog(t)
	defaults := Defaults()

	got := Resolve(defaults, nil)
	if !reflect.DeepEqual(got, defaults) {
		t.Fatalf("expected defaults, got %+v", got)
	}
	if n := countErrors(buf); n != 1 {
		t.Errorf("expected 1 error line, got %d: %s", n, buf.String())
	}
}

func TestResolve_MissingFile(t *testing.T) {
	buf := captureLog(t)
	path := filepath.Join(t.TempDir(), "nope.json")

	got := Resolve(Defaults(), FileSource(path))
	if !reflect.DeepEqual(got, Defaults()) {
		t.Fatal("expected defaults for missing file")
	}
	if !strings.Contains(buf.String(), "nope.json") {
		t.Errorf("expected diagnostic to name the file, got %q", buf.String())
	}
}

func TestResolve_InvalidSourceIsNotPartiallyMerged(t *testing.T) {
	buf := captureLog(t)
	// Valid prefix followed by garbage: nothing from it may leak through.
	src := bytesSource(`{"listen": {"port": 9999}, "ssh": {"port": `)

	got := Resolve(Defaults(), src)
	if !reflect.DeepEqual(got, Defaults()) {
		t.Fatalf("expected exact defaults, got listen=%+v ssh.port=%d", got.Listen, got.SSH.Port)
	}
	if n := countErrors(buf); n != 1 {
		t.Errorf("expected exactly 1 error line, got %d: %s", n, buf.String())
	}
}

func TestResolve_ValidationFailureFallsBack(t *testing.T) {
	captureLog(t)
	src := bytesSource(`{"listen": {"port": 70000}, "header": {"text": "prod"}}`)

	got := Resolve(Defaults(), src)
	if got.Header.Text != nil {
		t.Errorf("expected header.text from defaults (nil), got %q", *got.Header.Text)
	}
	if got.Listen.Port != 2222 {
		t.Errorf("expected default port, got %d", got.Listen.Port)
	}
}

func TestResolve_DeepMergePerField(t *testing.T) {
	captureLog(t)
	src := bytesSource(`{
	"ssh": {"port": 2200, "allowedSubnets": ["10.0.0.0/8"]},
	"header": {"text": "Lab"},
	"algorithms": {"cipher": ["aes256-ctr"]},
	"safeShutdownDuration": 3
}`)

	got := Resolve(Defaults(), src)
	if got.SSH.Port != 2200 {
		t.Errorf("ssh.port = %d, want 2200", got.SSH.Port)
	}
	if got.SSH.Term != "xterm-color" || got.SSH.ReadyTimeout != 20000 {
		t.Errorf("sibling ssh defaults lost: %+v", got.SSH)
	}
	if !reflect.DeepEqual(got.SSH.AllowedSubnets, []string{"10.0.0.0/8"}) {
		t.Errorf("allowedSubnets = %v", got.SSH.AllowedSubnets)
	}
	if got.Header.Text == nil || *got.Header.Text != "Lab" {
		t.Errorf("header.text not applied")
	}
	if got.Header.Background != "green" {
		t.Errorf("header.background = %q, want default green", got.Header.Background)
	}
	if !reflect.DeepEqual(got.Algorithms.Cipher, []string{"aes256-ctr"}) {
		t.Errorf("cipher list should be replaced wholesale, got %v", got.Algorithms.Cipher)
	}
	if len(got.Algorithms.Kex) != 5 {
		t.Errorf("kex defaults lost: %v", got.Algorithms.Kex)
	}
	if got.SafeShutdownDuration != 3 {
		t.Errorf("safeShutdownDuration = %d", got.SafeShutdownDuration)
	}
}

func TestResolve_YAMLDocument(t *testing.T) {
	captureLog(t)
	src := bytesSource("user:\n  name: alice\n  password: s3cret\nterminal:\n  bellStyle: none\n")

	got := Resolve(Defaults(), src)
	if got.User.Name == nil || *got.User.Name != "alice" {
		t.Fatalf("user.name not applied: %+v", got.User)
	}
	if got.User.PrivateKey != nil {
		t.Error("privatekey should stay nil")
	}
	if got.Terminal.BellStyle != "none" || got.Terminal.Scrollback != 10000 {
		t.Errorf("terminal = %+v", got.Terminal)
	}
}

func TestResolve_ExplicitNullClearsNullable(t *testing.T) {
	captureLog(t)
	defaults := Defaults()
	host := "bastion"
	defaults.SSH.Host = &host

	got := Resolve(defaults, bytesSource(`{"ssh": {"host": null}}`))
	if got.SSH.Host != nil {
		t.Errorf("expected nil host, got %q", *got.SSH.Host)
	}
	if defaults.SSH.Host == nil || *defaults.SSH.Host != "bastion" {
		t.Error("defaults were mutated")
	}
}

func TestResolve_DoesNotMutateDefaults(t *testing.T) {
	captureLog(t)
	defaults := Defaults()
	_ = Resolve(defaults, bytesSource(`{"algorithms": {"kex": ["curve25519-sha256"]}}`))
	if !reflect.DeepEqual(defaults, Defaults()) {
		t.Fatal("Resolve mutated its defaults argument")
	}
}

func TestFileSource_RoundTrip(t *testing.T) {
	captureLog(t)
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"listen": {"ip": "127.0.0.1", "port": 8443}}`), 0600); err != nil {
		t.Fatal(err)
	}

	got := Resolve(Defaults(), FileSource(path))
	if got.Listen.IP != "127.0.0.1" || got.Listen.Port != 8443 {
		t.Errorf("listen = %+v", got.Listen)
	}
}

func TestLoad_ErrorKinds(t *testing.T) {
	captureLog(t)
	tests := []struct {
		name string
		src  Source
		op   string
	}{
		{"nil source", nil, "locate"},
		{"missing file", FileSource(filepath.Join(t.TempDir(), "x.json")), "read"},
		{"bad syntax", bytesSource(`{`), "parse"},
		{"bad store", bytesSource(`{"session": {"store": "redis"}}`), "validate"},
		{"bad subnet", bytesSource(`{"ssh": {"allowedSubnets": ["10.0.0.0/33"]}}`), "validate"},
		{"negative drain", bytesSource(`{"safeShutdownDuration": -1}`), "validate"},
		{"half tls", bytesSource(`{"tls": {"cert": "a.pem"}}`), "validate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(Defaults(), tt.src)
			var le *LoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LoadError, got %v", err)
			}
			if le.Op != tt.op {
				t.Errorf("op = %q, want %q", le.Op, tt.op)
			}
		})
	}
}

func TestLoad_NilSourceIsErrNoSource(t *testing.T) {
	_, err := Load(Defaults(), nil)
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("expected ErrNoSource, got %v", err)
	}
}

func TestClone_Independent(t *testing.T) {
	a := Defaults()
	name := "root"
	a.User.Name = &name
	b := a.Clone()

	b.Algorithms.Kex[0] = "changed"
	*b.User.Name = "other"
	b.SSH.AllowedSubnets = append(b.SSH.AllowedSubnets, "10.0.0.1")

	if a.Algorithms.Kex[0] == "changed" {
		t.Error("kex slice aliased")
	}
	if *a.User.Name != "root" {
		t.Error("user.name aliased")
	}
	if len(a.SSH.AllowedSubnets) != 0 {
		t.Error("allowedSubnets aliased")
	}
}

func TestDefaults_Validate(t *testing.T) {
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}
}
