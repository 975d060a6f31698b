package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// proxyTrust lists the reverse proxies whose X-Forwarded-For header is
// believed. Empty means the header is ignored.
type proxyTrust []netip.Prefix

// parseTrustedProxies accepts CIDR ranges and bare addresses.
func parseTrustedProxies(entries []string) (proxyTrust, error) {
	out := make(proxyTrust, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (t proxyTrust) trusts(raw string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range t {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address, or when the peer is a trusted proxy the
// right-most X-Forwarded-For hop that is not itself a trusted proxy.
func (t proxyTrust) clientIP(r *http.Request) string {
	remote := remoteHost(r.RemoteAddr)
	if len(t) == 0 || !t.trusts(remote) {
		return remote
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	client := ""
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		client = hop
		if !t.trusts(hop) {
			return hop
		}
	}
	// every hop is a proxy: the left-most one is as close to the client as we get
	if client != "" {
		return client
	}
	return remote
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return "unknown"
}
