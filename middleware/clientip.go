package middleware

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyTrust lists the reverse proxies whose X-Forwarded-For header is
// believed. A nil *ProxyTrust trusts nobody.
type ProxyTrust struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies accepts CIDR ranges and bare addresses. An empty list
// returns nil.
func ParseTrustedProxies(entries []string) (*ProxyTrust, error) {
	var prefixes []netip.Prefix
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	if len(prefixes) == 0 {
		return nil, nil
	}
	return &ProxyTrust{prefixes: prefixes}, nil
}

func (t *ProxyTrust) trusts(addr netip.Addr) bool {
	if t == nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the connection's peer address. Forwarding headers are
// ignored; use [ProxyTrust.ClientIP] behind a reverse proxy.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP returns the peer address unless the peer is a trusted proxy. In
// that case X-Forwarded-For is walked from the right, skipping trusted hops,
// and the first untrusted hop is returned. A malformed hop ends the walk at
// the last address that was verified.
func (t *ProxyTrust) ClientIP(r *http.Request) string {
	peer := ClientIP(r)
	peerAddr, err := netip.ParseAddr(peer)
	if err != nil || !t.trusts(peerAddr) {
		return peer
	}

	hops := r.Header.Values("X-Forwarded-For")
	var all []string
	for _, h := range hops {
		all = append(all, strings.Split(h, ",")...)
	}

	client := peer
	for i := len(all) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(all[i]))
		if err != nil {
			return client
		}
		client = addr.Unmap().String()
		if !t.trusts(addr) {
			return client
		}
	}
	return client
}
