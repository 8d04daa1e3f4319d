package sshbridge

import (
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/AMFTech512/sillyctf-webssh2/internal/session"
)

// ErrNoUsername is returned when neither a default user nor a basic-auth
// login supplied a username.
var ErrNoUsername = errors.New("no SSH username available")

// Credentials authenticate the bridge to the target.
type Credentials struct {
	Username   string
	Password   string
	PrivateKey string
}

// ClientConfig maps a descriptor and credentials to an SSH client config.
// Algorithm identifiers the SSH library does not implement are dropped with
// a log line; compression is never negotiated. A nil hostKeys accepts any
// host key and logs its fingerprint.
func ClientConfig(desc *session.Descriptor, creds Credentials, hostKeys ssh.HostKeyCallback) (*ssh.ClientConfig, error) {
	if creds.Username == "" {
		return nil, ErrNoUsername
	}

	var auth []ssh.AuthMethod
	if creds.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(creds.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		pw := creds.Password
		auth = append(auth,
			ssh.Password(pw),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = pw
				}
				return answers, nil
			}),
		)
	}

	if hostKeys == nil {
		hostKeys = logHostKey
	}

	supported := ssh.SupportedAlgorithms()
	insecure := ssh.InsecureAlgorithms()

	cfg := &ssh.ClientConfig{
		User:            creds.Username,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         time.Duration(desc.ReadyTimeout) * time.Millisecond,
	}
	cfg.KeyExchanges = filterAlgorithms("kex", desc.Algorithms.Kex, supported.KeyExchanges, insecure.KeyExchanges)
	cfg.Ciphers = filterAlgorithms("cipher", desc.Algorithms.Cipher, supported.Ciphers, insecure.Ciphers)
	cfg.MACs = filterAlgorithms("hmac", desc.Algorithms.HMAC, supported.MACs, insecure.MACs)
	return cfg, nil
}

// filterAlgorithms keeps the identifiers in want that appear in one of the
// known lists, preserving order. It returns nil, meaning library defaults,
// when nothing survives.
func filterAlgorithms(kind string, want []string, known ...[]string) []string {
	if len(want) == 0 {
		return nil
	}
	ok := make(map[string]bool)
	for _, list := range known {
		for _, name := range list {
			ok[name] = true
		}
	}
	var out []string
	for _, name := range want {
		if ok[name] {
			out = append(out, name)
			continue
		}
		log.Printf("[sshbridge] ignoring unsupported %s algorithm %q", kind, name)
	}
	if len(out) == 0 {
		log.Printf("[sshbridge] no supported %s algorithms configured, using library defaults", kind)
		return nil
	}
	return out
}

func logHostKey(hostname string, _ net.Addr, key ssh.PublicKey) error {
	log.Printf("[sshbridge] host key for %s: %s %s", hostname, key.Type(), ssh.FingerprintSHA256(key))
	return nil
}
