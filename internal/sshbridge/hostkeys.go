package sshbridge

import (
	"fmt"
	"log"
	"net"
	"sync"

	"golang.org/x/crypto/ssh"
)

// KnownHosts pins the first host key seen for each target for the life of
// the process.
type KnownHosts struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewKnownHosts() *KnownHosts {
	return &KnownHosts{keys: make(map[string]string)}
}

// Callback returns an ssh.HostKeyCallback backed by k.
func (k *KnownHosts) Callback() ssh.HostKeyCallback {
	return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
		fp := ssh.FingerprintSHA256(key)
		k.mu.Lock()
		defer k.mu.Unlock()
		known, ok := k.keys[hostname]
		if !ok {
			k.keys[hostname] = fp
			log.Printf("[sshbridge] pinned host key for %s: %s %s", hostname, key.Type(), fp)
			return nil
		}
		if known != fp {
			log.Printf("[sshbridge] host key MISMATCH for %s: expected %s, got %s", hostname, known, fp)
			return fmt.Errorf("host key for %s changed: expected %s, got %s", hostname, known, fp)
		}
		return nil
	}
}
