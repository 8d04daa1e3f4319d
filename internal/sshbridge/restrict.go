package sshbridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/AMFTech512/sillyctf-webssh2/internal/session"
)

// ErrNoHost is returned when the descriptor has no target host.
var ErrNoHost = errors.New("no SSH host configured")

// ErrTargetRestricted is returned when the target resolves outside the
// allowed subnets.
type ErrTargetRestricted struct {
	Host   string
	IP     string
	Reason string
}

func (e *ErrTargetRestricted) Error() string {
	return fmt.Sprintf("SSH connection to %s blocked: %s (%s)", e.Host, e.IP, e.Reason)
}

// Restriction is a parsed allowedSubnets list.
type Restriction struct {
	CIDRs []*net.IPNet
	IPs   []net.IP
	Raw   string
}

// ParseSubnets parses CIDR ranges and bare IP addresses. It returns nil for
// an empty list, meaning no restriction.
func ParseSubnets(entries []string) (*Restriction, error) {
	r := &Restriction{}
	var raw []string
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		raw = append(raw, entry)
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid CIDR %q: %w", entry, err)
			}
			r.CIDRs = append(r.CIDRs, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address %q", entry)
		}
		r.IPs = append(r.IPs, ip)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	r.Raw = strings.Join(raw, ",")
	return r, nil
}

// IsAllowed reports whether ip falls inside the restriction. A nil
// restriction allows everything.
func (r *Restriction) IsAllowed(ip net.IP) bool {
	if r == nil {
		return true
	}
	for _, cidr := range r.CIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	for _, allowed := range r.IPs {
		if allowed.Equal(ip) {
			return true
		}
	}
	return false
}

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// CheckTarget enforces the descriptor's allowedSubnets and returns the
// address to dial. With a restriction in place the host is resolved here
// and the first allowed address is dialled, so the check and the
// connection agree on the target.
func CheckTarget(ctx context.Context, resolver Resolver, desc *session.Descriptor) (string, error) {
	if desc.Host == nil || *desc.Host == "" {
		return "", ErrNoHost
	}
	host := *desc.Host
	port := strconv.Itoa(desc.Port)

	restriction, err := ParseSubnets(desc.AllowedSubnets)
	if err != nil {
		return "", fmt.Errorf("parse allowed subnets: %w", err)
	}
	if restriction == nil {
		return net.JoinHostPort(host, port), nil
	}

	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		if resolver == nil {
			resolver = net.DefaultResolver
		}
		ips, err = resolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return "", &ErrTargetRestricted{Host: host, IP: "unknown", Reason: fmt.Sprintf("resolve failed: %v", err)}
		}
	}

	for _, ip := range ips {
		if restriction.IsAllowed(ip) {
			return net.JoinHostPort(ip.String(), port), nil
		}
	}
	log.Printf("[sshbridge] BLOCKED connection to %s: no address in allowed subnets [%s]", host, restriction.Raw)
	shown := "unknown"
	if len(ips) > 0 {
		shown = ips[0].String()
	}
	return "", &ErrTargetRestricted{
		Host:   host,
		IP:     shown,
		Reason: fmt.Sprintf("not in allowed subnets [%s]", restriction.Raw),
	}
}
