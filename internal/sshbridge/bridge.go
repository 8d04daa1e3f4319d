package sshbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/time/rate"

	"github.com/AMFTech512/sillyctf-webssh2/internal/logutil"
	"github.com/AMFTech512/sillyctf-webssh2/internal/metrics"
	"github.com/AMFTech512/sillyctf-webssh2/internal/realtime"
	"github.com/AMFTech512/sillyctf-webssh2/internal/session"
)

// InputRateLimit and InputRateBurst bound browser input per connection.
// Frames beyond the rate are dropped.
const (
	InputRateLimit = 200
	InputRateBurst = 200
)

// maxReadSize is the WebSocket read limit for browser frames.
const maxReadSize = 1024 * 1024

// ReplayCredentials is the control message asking the bridge to type the
// session password into the shell.
const ReplayCredentials = "replayCredentials"

// Client events.
const (
	EventSetTerminalOpts = "setTerminalOpts"
	EventTitle           = "title"
	EventHeader          = "header"
	EventFooter          = "footer"
	EventAllowReplay     = "allowreplay"
	EventAllowReauth     = "allowreauth"
	EventStatus          = "status"
	EventSSHError        = "ssherror"
)

type controlMessage struct {
	Type string `json:"type"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
	Data string `json:"data"`
}

// Bridge runs SSH sessions for accepted WebSocket clients.
type Bridge struct {
	// Sessions persists the descriptor once the correlation token is set.
	// Optional.
	Sessions *session.Manager
	// Defaults is the configured default user. When Username is set it is
	// used for every session and basic-auth credentials are ignored.
	Defaults Credentials
	// HostKeys verifies target host keys. Nil accepts and logs them.
	HostKeys *KnownHosts
	// Resolver resolves target hosts when allowedSubnets is set.
	Resolver Resolver
}

// Serve connects the client to the target described by st and relays until
// either side goes away.
func (b *Bridge) Serve(ctx context.Context, c *realtime.Client, st *session.State) {
	if st == nil || st.Data == nil || st.Data.SSH == nil {
		b.fail(ctx, c, "config_error", "WEBSOCKET ERROR - Refresh the browser and try again")
		return
	}
	desc := st.Data.SSH
	creds := b.credentials(st)

	addr, err := CheckTarget(ctx, b.Resolver, desc)
	if err != nil {
		result := "config_error"
		if _, ok := err.(*ErrTargetRestricted); ok {
			result = "restricted"
		}
		b.fail(ctx, c, result, fmt.Sprintf("SSH CONNECTION ERROR - %v", err))
		return
	}

	var hostKeys ssh.HostKeyCallback
	if b.HostKeys != nil {
		hostKeys = b.HostKeys.Callback()
	}
	cfg, err := ClientConfig(desc, creds, hostKeys)
	if err != nil {
		b.fail(ctx, c, "config_error", fmt.Sprintf("SSH CONNECTION ERROR - %v", err))
		return
	}

	target := net.JoinHostPort(*desc.Host, strconv.Itoa(desc.Port))
	client, result, err := dial(ctx, desc, addr, target, cfg)
	if err != nil {
		b.fail(ctx, c, result, fmt.Sprintf("SSH CONNECTION ERROR - %v", err))
		return
	}
	defer client.Close()

	desc.MRHSession = uuid.NewString()
	if b.Sessions != nil {
		if err := b.Sessions.Save(nil, st); err != nil {
			log.Printf("[sshbridge] persist correlation token: %v", err)
		}
	}

	term, err := openTerminal(client, desc.Term)
	if err != nil {
		b.fail(ctx, c, "shell_error", fmt.Sprintf("SSH SHELL ERROR - %v", err))
		return
	}
	defer term.close()

	metrics.SSHSessions.WithLabelValues("established").Inc()
	user := logutil.SanitizeForLog(creds.Username)
	log.Printf("[sshbridge] %s@%s: session established from %s (mrhsession=%s)", user, target, c.RemoteAddr, desc.MRHSession)
	defer log.Printf("[sshbridge] %s@%s: session ended (mrhsession=%s)", user, target, desc.MRHSession)

	b.announce(ctx, c, desc, creds.Username, target)

	conn := c.Conn()
	conn.SetReadLimit(maxReadSize)

	relayCtx, relayCancel := context.WithCancel(ctx)
	defer relayCancel()

	go keepalive(relayCtx, client, desc, relayCancel)

	go func() {
		pump(relayCtx, conn, term.stdout, desc.ServerLog.Server, target)
		term.session.Wait()
		relayCancel()
	}()
	go pump(relayCtx, conn, term.stderr, desc.ServerLog.Server, target)

	b.readClient(relayCtx, conn, term, st, desc, target)
}

func (b *Bridge) credentials(st *session.State) Credentials {
	if b.Defaults.Username != "" {
		return b.Defaults
	}
	return Credentials{Username: st.Data.Username, Password: st.Data.Password}
}

func (b *Bridge) announce(ctx context.Context, c *realtime.Client, desc *session.Descriptor, user, target string) {
	c.Emit(ctx, EventTitle, "ssh://"+target)
	c.Emit(ctx, EventAllowReplay, desc.AllowReplay)
	c.Emit(ctx, EventAllowReauth, desc.AllowReauth)
	if desc.Header.Name != nil {
		c.Emit(ctx, EventHeader, desc.Header)
	}
	c.Emit(ctx, EventFooter, "ssh://"+user+"@"+target)
	c.Emit(ctx, EventSetTerminalOpts, desc.Terminal)
	c.Emit(ctx, EventStatus, "SSH CONNECTION ESTABLISHED")
}

func (b *Bridge) fail(ctx context.Context, c *realtime.Client, result, msg string) {
	metrics.SSHSessions.WithLabelValues(result).Inc()
	log.Printf("[sshbridge] %s: %s", c.RemoteAddr, msg)
	if err := c.Emit(ctx, EventSSHError, msg); err != nil {
		log.Printf("[sshbridge] report error to %s: %v", c.RemoteAddr, err)
	}
}

// readClient relays browser frames to the shell until the connection or the
// relay context ends.
func (b *Bridge) readClient(ctx context.Context, conn *websocket.Conn, term *terminal, st *session.State, desc *session.Descriptor, target string) {
	limiter := rate.NewLimiter(rate.Limit(InputRateLimit), InputRateBurst)
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if !limiter.Allow() {
			continue
		}

		if msgType == websocket.MessageBinary {
			if len(data) > MaxInputMessageSize {
				log.Printf("[sshbridge] %s: input frame too large (%d bytes, limit %d)", target, len(data), MaxInputMessageSize)
				continue
			}
			if desc.ServerLog.Client {
				log.Printf("[sshbridge] serverlog client %s: %d bytes", target, len(data))
			}
			if _, err := term.stdin.Write(data); err != nil {
				return
			}
			continue
		}

		var msg controlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				term.resize(msg.Cols, msg.Rows)
			}
		case "control":
			if msg.Data == ReplayCredentials && desc.AllowReplay {
				pw := b.credentials(st).Password
				if pw == "" {
					continue
				}
				log.Printf("[sshbridge] %s: replaying credentials", target)
				if _, err := io.WriteString(term.stdin, pw+"\n"); err != nil {
					return
				}
			}
		}
	}
}

// dial opens the TCP connection and runs the SSH handshake within the
// descriptor's ready timeout. The result label names the failing stage.
func dial(ctx context.Context, desc *session.Descriptor, addr, target string, cfg *ssh.ClientConfig) (*ssh.Client, string, error) {
	d := net.Dialer{Timeout: cfg.Timeout}
	if la := localAddr(desc); la != nil {
		d.LocalAddr = la
	}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, "dial_error", fmt.Errorf("dial %s: %w", target, err)
	}
	if cfg.Timeout > 0 {
		nc.SetDeadline(time.Now().Add(cfg.Timeout))
	}
	sc, chans, reqs, err := ssh.NewClientConn(nc, target, cfg)
	if err != nil {
		nc.Close()
		return nil, "auth_error", fmt.Errorf("handshake with %s: %w", target, err)
	}
	nc.SetDeadline(time.Time{})
	return ssh.NewClient(sc, chans, reqs), "", nil
}

func localAddr(desc *session.Descriptor) *net.TCPAddr {
	if desc.LocalAddress == nil && desc.LocalPort == nil {
		return nil
	}
	la := &net.TCPAddr{}
	if desc.LocalAddress != nil {
		la.IP = net.ParseIP(*desc.LocalAddress)
	}
	if desc.LocalPort != nil {
		la.Port = *desc.LocalPort
	}
	return la
}

// pump copies shell output to the browser as binary frames.
func pump(ctx context.Context, conn *websocket.Conn, r io.Reader, logData bool, target string) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if logData {
				log.Printf("[sshbridge] serverlog server %s: %d bytes", target, n)
			}
			if werr := conn.Write(ctx, websocket.MessageBinary, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// DefaultKeepaliveCountMax applies when keepaliveCountMax is not positive.
const DefaultKeepaliveCountMax = 3

// requester sends SSH global requests; *ssh.Client satisfies it.
type requester interface {
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)
}

// keepalive pings the server every keepaliveInterval ms and calls dead after
// keepaliveCountMax consecutive failures.
func keepalive(ctx context.Context, client requester, desc *session.Descriptor, dead func()) {
	if desc.KeepaliveInterval <= 0 {
		return
	}
	limit := desc.KeepaliveCountMax
	if limit <= 0 {
		limit = DefaultKeepaliveCountMax
	}
	ticker := time.NewTicker(time.Duration(desc.KeepaliveInterval) * time.Millisecond)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				failures++
				log.Printf("[sshbridge] keepalive failed (%d/%d): %v", failures, limit, err)
				if failures >= limit {
					dead()
					return
				}
				continue
			}
			failures = 0
		}
	}
}
