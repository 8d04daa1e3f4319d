package session

import (
	"github.com/AMFTech512/sillyctf-webssh2/internal/config"
)

// NoCorrelation is the correlation token a descriptor starts with. The
// terminal bridge replaces it once the SSH session exists.
const NoCorrelation = "none"

// Header is the banner shown above the browser terminal.
type Header struct {
	Name       *string `json:"name"`
	Background string  `json:"background"`
}

// Descriptor is the per-session parameter set the terminal bridge connects
// with. JSON names match what the browser client reads.
type Descriptor struct {
	Host              *string                `json:"host"`
	Port              int                    `json:"port"`
	LocalAddress      *string                `json:"localAddress"`
	LocalPort         *int                   `json:"localPort"`
	Header            Header                 `json:"header"`
	Algorithms        config.Algorithms      `json:"algorithms"`
	KeepaliveInterval int                    `json:"keepaliveInterval"`
	KeepaliveCountMax int                    `json:"keepaliveCountMax"`
	AllowedSubnets    []string               `json:"allowedSubnets"`
	Term              string                 `json:"term"`
	Terminal          config.TerminalOptions `json:"terminal"`
	AllowReplay       bool                   `json:"allowreplay"`
	AllowReauth       bool                   `json:"allowreauth"`
	MRHSession        string                 `json:"mrhsession"`
	ServerLog         config.ServerLog       `json:"serverlog"`
	ReadyTimeout      int                    `json:"readyTimeout"`
}

// Build derives a fresh descriptor from cfg. Lists and nullable fields are
// copied, so descriptors never share storage with cfg or with each other.
func Build(cfg config.Config) *Descriptor {
	c := cfg.Clone()
	return &Descriptor{
		Host:              c.SSH.Host,
		Port:              c.SSH.Port,
		LocalAddress:      c.SSH.LocalAddress,
		LocalPort:         c.SSH.LocalPort,
		Header:            Header{Name: c.Header.Text, Background: c.Header.Background},
		Algorithms:        c.Algorithms,
		KeepaliveInterval: c.SSH.KeepaliveInterval,
		KeepaliveCountMax: c.SSH.KeepaliveCountMax,
		AllowedSubnets:    c.SSH.AllowedSubnets,
		Term:              c.SSH.Term,
		Terminal:          c.Terminal,
		AllowReplay:       c.Options.ChallengeButton,
		AllowReauth:       c.Options.AllowReauth,
		MRHSession:        NoCorrelation,
		ServerLog:         c.ServerLog,
		ReadyTimeout:      c.SSH.ReadyTimeout,
	}
}

// Clone returns a deep copy of d.
func (d *Descriptor) Clone() *Descriptor {
	if d == nil {
		return nil
	}
	out := *d
	out.Host = cloneString(d.Host)
	out.LocalAddress = cloneString(d.LocalAddress)
	if d.LocalPort != nil {
		p := *d.LocalPort
		out.LocalPort = &p
	}
	out.Header.Name = cloneString(d.Header.Name)
	out.Algorithms = d.Algorithms.Clone()
	if d.AllowedSubnets != nil {
		out.AllowedSubnets = make([]string, len(d.AllowedSubnets))
		copy(out.AllowedSubnets, d.AllowedSubnets)
	}
	return &out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
