package config

// Config is the resolved gateway configuration. Values are produced by
// Resolve and treated as immutable afterwards; use Clone before mutating.
type Config struct {
	Listen               ListenConfig    `yaml:"listen"`
	User                 UserConfig      `yaml:"user"`
	SSH                  SSHConfig       `yaml:"ssh"`
	Terminal             TerminalOptions `yaml:"terminal"`
	Header               HeaderConfig    `yaml:"header"`
	Session              SessionConfig   `yaml:"session"`
	Options              FeatureOptions  `yaml:"options"`
	Algorithms           Algorithms      `yaml:"algorithms"`
	ServerLog            ServerLog       `yaml:"serverlog"`
	AccessLog            bool            `yaml:"accesslog"`
	Verify               bool            `yaml:"verify"`
	SafeShutdownDuration int             `yaml:"safeShutdownDuration"`

	Redirect   RedirectConfig `yaml:"redirect"`
	TLS        TLSConfig      `yaml:"tls"`
	PublicPath string         `yaml:"publicPath"`
}

type ListenConfig struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

// UserConfig holds the default credential. Each field is nil when unset.
type UserConfig struct {
	Name       *string `yaml:"name"`
	Password   *string `yaml:"password"`
	PrivateKey *string `yaml:"privatekey"`
}

type SSHConfig struct {
	Host              *string  `yaml:"host"`
	Port              int      `yaml:"port"`
	LocalAddress      *string  `yaml:"localAddress"`
	LocalPort         *int     `yaml:"localPort"`
	Term              string   `yaml:"term"`
	ReadyTimeout      int      `yaml:"readyTimeout"`
	KeepaliveInterval int      `yaml:"keepaliveInterval"`
	KeepaliveCountMax int      `yaml:"keepaliveCountMax"`
	AllowedSubnets    []string `yaml:"allowedSubnets"`
}

// TerminalOptions are handed to the browser terminal as-is.
type TerminalOptions struct {
	CursorBlink  bool   `yaml:"cursorBlink" json:"cursorBlink"`
	Scrollback   int    `yaml:"scrollback" json:"scrollback"`
	TabStopWidth int    `yaml:"tabStopWidth" json:"tabStopWidth"`
	BellStyle    string `yaml:"bellStyle" json:"bellStyle"`
}

type HeaderConfig struct {
	Text       *string `yaml:"text"`
	Background string  `yaml:"background"`
}

type SessionConfig struct {
	Name   string `yaml:"name"`
	Secret string `yaml:"secret"`
	// Store selects the session backend: "memory" or "sqlite".
	Store  string `yaml:"store"`
	MaxAge int    `yaml:"maxAge"`
}

type FeatureOptions struct {
	ChallengeButton bool `yaml:"challengeButton"`
	AllowReauth     bool `yaml:"allowreauth"`
}

// Algorithms lists SSH algorithm identifiers in preference order.
type Algorithms struct {
	Kex      []string `yaml:"kex" json:"kex"`
	Cipher   []string `yaml:"cipher" json:"cipher"`
	HMAC     []string `yaml:"hmac" json:"hmac"`
	Compress []string `yaml:"compress" json:"compress"`
}

type ServerLog struct {
	Client bool `yaml:"client" json:"client"`
	Server bool `yaml:"server" json:"server"`
}

// RedirectConfig controls the plaintext listener. An empty Target disables it.
type RedirectConfig struct {
	Port   int    `yaml:"port"`
	Target string `yaml:"target"`
}

// TLSConfig enables HTTPS on the main listener when both paths are set.
type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

func (t TLSConfig) Enabled() bool {
	return t.Cert != "" && t.Key != ""
}

// Defaults returns the built-in configuration. Every field a consumer reads
// has a usable value here.
func Defaults() Config {
	return Config{
		Listen: ListenConfig{IP: "0.0.0.0", Port: 2222},
		SSH: SSHConfig{
			Port:              22,
			Term:              "xterm-color",
			ReadyTimeout:      20000,
			KeepaliveInterval: 120000,
			KeepaliveCountMax: 10,
			AllowedSubnets:    []string{},
		},
		Terminal: TerminalOptions{
			CursorBlink:  true,
			Scrollback:   10000,
			TabStopWidth: 8,
			BellStyle:    "sound",
		},
		Header:  HeaderConfig{Background: "green"},
		Session: SessionConfig{Name: "WebSSH2", Secret: "mysecret", Store: "memory", MaxAge: 86400},
		Options: FeatureOptions{ChallengeButton: true, AllowReauth: true},
		Algorithms: Algorithms{
			Kex: []string{
				"ecdh-sha2-nistp256",
				"ecdh-sha2-nistp384",
				"ecdh-sha2-nistp521",
				"diffie-hellman-group-exchange-sha256",
				"diffie-hellman-group14-sha1",
			},
			Cipher: []string{
				"aes128-ctr",
				"aes192-ctr",
				"aes256-ctr",
				"aes128-gcm",
				"aes128-gcm@openssh.com",
				"aes256-gcm",
				"aes256-gcm@openssh.com",
				"aes256-cbc",
			},
			HMAC:     []string{"hmac-sha2-256", "hmac-sha2-512", "hmac-sha1"},
			Compress: []string{"none", "zlib@openssh.com", "zlib"},
		},
		SafeShutdownDuration: 300,
		Redirect:             RedirectConfig{Port: 8080},
		PublicPath:           "client/public",
	}
}

// Clone returns a deep copy: slices and nullable fields do not alias c.
func (c Config) Clone() Config {
	out := c
	out.User = UserConfig{
		Name:       cloneString(c.User.Name),
		Password:   cloneString(c.User.Password),
		PrivateKey: cloneString(c.User.PrivateKey),
	}
	out.SSH.Host = cloneString(c.SSH.Host)
	out.SSH.LocalAddress = cloneString(c.SSH.LocalAddress)
	if c.SSH.LocalPort != nil {
		p := *c.SSH.LocalPort
		out.SSH.LocalPort = &p
	}
	out.SSH.AllowedSubnets = cloneStrings(c.SSH.AllowedSubnets)
	out.Header.Text = cloneString(c.Header.Text)
	out.Algorithms = c.Algorithms.Clone()
	return out
}

func (a Algorithms) Clone() Algorithms {
	return Algorithms{
		Kex:      cloneStrings(a.Kex),
		Cipher:   cloneStrings(a.Cipher),
		HMAC:     cloneStrings(a.HMAC),
		Compress: cloneStrings(a.Compress),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
