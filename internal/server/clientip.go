package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// proxySet holds the reverse proxies whose forwarding headers are believed.
type proxySet []netip.Prefix

// parseProxySet accepts bare addresses and CIDR ranges. Unparseable entries
// are dropped.
func parseProxySet(values []string) proxySet {
	var set proxySet
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if addr, err := netip.ParseAddr(v); err == nil {
			addr = addr.Unmap()
			set = append(set, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		if prefix, err := netip.ParsePrefix(v); err == nil {
			set = append(set, prefix.Masked())
		}
	}
	return set
}

func (p proxySet) trusts(raw string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// clientIP returns the peer address, or when the peer is a trusted proxy the
// right-most X-Forwarded-For hop that is not itself a trusted proxy.
func (p proxySet) clientIP(r *http.Request) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || remote == "" {
		remote = r.RemoteAddr
	}
	if len(p) == 0 || !p.trusts(remote) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !p.trusts(hop) {
				return hop
			}
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return remote
}
