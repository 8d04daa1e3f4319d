package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AMFTech512/sillyctf-webssh2/internal/metrics"
)

// ErrNoSource is reported when Resolve is called without an external source.
var ErrNoSource = errors.New("no configuration source")

// Source supplies the raw bytes of an external configuration document.
type Source interface {
	Name() string
	Load() ([]byte, error)
}

// FileSource reads configuration from a JSON or YAML file on disk.
type FileSource string

func (p FileSource) Name() string { return string(p) }

func (p FileSource) Load() ([]byte, error) {
	return os.ReadFile(string(p))
}

// LoadError describes why an external source was not applied.
type LoadError struct {
	Source string
	Op     string // "locate", "read", "parse" or "validate"
	Err    error
}

func (e *LoadError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("config %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("config %s %s: %v", e.Op, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Resolve overlays src on top of defaults. It never fails: when src is nil,
// unreadable, malformed or invalid, one diagnostic is logged and a copy of
// defaults is returned untouched.
func Resolve(defaults Config, src Source) Config {
	cfg, err := Load(defaults, src)
	if err != nil {
		metrics.ConfigLoadFailures.Inc()
		log.Printf("[config] ERROR: %v; continuing with defaults", err)
		return defaults.Clone()
	}
	return cfg
}

// Load reads, parses and validates src over defaults. Any failure is
// returned as a *LoadError.
func Load(defaults Config, src Source) (Config, error) {
	if src == nil {
		return Config{}, &LoadError{Op: "locate", Err: ErrNoSource}
	}
	log.Printf("[config] reading config from %s", src.Name())

	data, err := src.Load()
	if err != nil {
		return Config{}, &LoadError{Source: src.Name(), Op: "read", Err: err}
	}
	cfg, err := Parse(defaults, data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Source = src.Name()
		}
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes data over a deep copy of defaults. Keys present in data
// override individual fields; lists are replaced wholesale and an explicit
// null clears a nullable field. JSON documents are accepted as YAML.
func Parse(defaults Config, data []byte) (Config, error) {
	cfg := defaults.Clone()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, &LoadError{Op: "parse", Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, &LoadError{Op: "validate", Err: err}
	}
	return cfg, nil
}

// Validate checks the fields whose bad values would break the listener, the
// session layer or the drain countdown. Algorithm names are not checked.
func (c Config) Validate() error {
	var errs []error
	if !validPort(c.Listen.Port) {
		errs = append(errs, fmt.Errorf("listen.port %d out of range", c.Listen.Port))
	}
	if !validPort(c.SSH.Port) {
		errs = append(errs, fmt.Errorf("ssh.port %d out of range", c.SSH.Port))
	}
	if c.SSH.LocalPort != nil && (*c.SSH.LocalPort < 0 || *c.SSH.LocalPort > 65535) {
		errs = append(errs, fmt.Errorf("ssh.localPort %d out of range", *c.SSH.LocalPort))
	}
	if c.SSH.ReadyTimeout < 0 || c.SSH.KeepaliveInterval < 0 || c.SSH.KeepaliveCountMax < 0 {
		errs = append(errs, errors.New("ssh timeouts must not be negative"))
	}
	for _, s := range c.SSH.AllowedSubnets {
		if !validSubnet(s) {
			errs = append(errs, fmt.Errorf("ssh.allowedSubnets: invalid entry %q", s))
		}
	}
	if c.SafeShutdownDuration < 0 {
		errs = append(errs, fmt.Errorf("safeShutdownDuration %d must not be negative", c.SafeShutdownDuration))
	}
	switch c.Session.Store {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("session.store %q must be memory or sqlite", c.Session.Store))
	}
	if c.Session.Name == "" || c.Session.Secret == "" {
		errs = append(errs, errors.New("session.name and session.secret are required"))
	}
	if c.Session.MaxAge <= 0 {
		errs = append(errs, fmt.Errorf("session.maxAge %d must be positive", c.Session.MaxAge))
	}
	if c.Redirect.Target != "" && !validPort(c.Redirect.Port) {
		errs = append(errs, fmt.Errorf("redirect.port %d out of range", c.Redirect.Port))
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		errs = append(errs, errors.New("tls.cert and tls.key must be set together"))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

func validSubnet(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return net.ParseIP(s) != nil
}
