package sshbridge

import (
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// MaxInputMessageSize is the largest stdin frame accepted from the browser.
const MaxInputMessageSize = 64 * 1024

const (
	MaxResizeCols uint16 = 500
	MaxResizeRows uint16 = 500
)

const defaultTerm = "xterm-color"

// terminal is a PTY-backed login shell on an SSH connection.
type terminal struct {
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
	session *ssh.Session
}

func (t *terminal) resize(cols, rows uint16) error {
	if cols > MaxResizeCols {
		cols = MaxResizeCols
	}
	if rows > MaxResizeRows {
		rows = MaxResizeRows
	}
	return t.session.WindowChange(int(rows), int(cols))
}

func (t *terminal) close() error {
	return t.session.Close()
}

// openTerminal requests a PTY of type term and starts the user's login shell.
func openTerminal(client *ssh.Client, term string) (*terminal, error) {
	if term == "" {
		term = defaultTerm
	}
	s, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := s.RequestPty(term, 24, 80, modes); err != nil {
		s.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := s.StdinPipe()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := s.StdoutPipe()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := s.StderrPipe()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := s.Shell(); err != nil {
		s.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &terminal{stdin: stdin, stdout: stdout, stderr: stderr, session: s}, nil
}
