package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies is the set of reverse proxies whose X-Forwarded-For and
// X-Real-IP headers are believed. A nil or empty set trusts no one, so the
// client is always the TCP peer.
type TrustedProxies struct {
	prefixes []netip.Prefix
}

// ParseTrustedProxies parses IPs and CIDR ranges. A bare IP becomes a /32 or
// /128 prefix. Blank entries are skipped; any other invalid entry is an error.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	tp := &TrustedProxies{}
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			addr, addrErr := netip.ParseAddr(entry)
			if addrErr != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: must be an IP address or CIDR range", entry)
			}
			prefix = netip.PrefixFrom(addr, addr.BitLen())
		}
		tp.prefixes = append(tp.prefixes, prefix.Masked())
	}
	return tp, nil
}

// Len returns the number of trusted ranges.
func (tp *TrustedProxies) Len() int {
	if tp == nil {
		return 0
	}
	return len(tp.prefixes)
}

// IsTrusted reports whether remoteAddr ("ip:port" or a bare ip) is a trusted proxy.
func (tp *TrustedProxies) IsTrusted(remoteAddr string) bool {
	if tp.Len() == 0 {
		return false
	}
	addr, err := netip.ParseAddr(hostOf(remoteAddr))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range tp.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the address rate limits are keyed on. Forwarding headers
// are read only when the peer is trusted: first the leading X-Forwarded-For
// entry, then X-Real-IP. Otherwise, or when neither header parses, it is the
// RemoteAddr host.
func (tp *TrustedProxies) ClientIP(r *http.Request) string {
	peer := hostOf(r.RemoteAddr)
	if !tp.IsTrusted(r.RemoteAddr) {
		return peer
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip.String()
		}
	}
	return peer
}

// hostOf strips the port from addr, leaving addr as is when it has none.
func hostOf(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
