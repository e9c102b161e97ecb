package security

import (
	"net"
	"net/netip"
	"strings"
)

// TrustedClientIP returns the client address a request should be limited
// by. Without trusted proxies only the socket peer counts. With them, the
// rightmost X-Forwarded-For entry that is not a trusted proxy wins.
func TrustedClientIP(remoteAddr, xForwardedFor string, trustedProxies []string) string {
	remoteIP := stripPort(remoteAddr)
	if len(trustedProxies) == 0 || xForwardedFor == "" {
		return remoteIP
	}

	trusted := parsePrefixes(trustedProxies)
	hops := strings.Split(xForwardedFor, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			continue
		}
		if !containsAddr(trusted, addr.Unmap()) {
			return addr.String()
		}
	}
	return remoteIP
}

func stripPort(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// parsePrefixes accepts CIDRs and bare addresses; invalid entries are skipped.
func parsePrefixes(entries []string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		if p, err := netip.ParsePrefix(e); err == nil {
			out = append(out, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(e); err == nil {
			a = a.Unmap()
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

func containsAddr(prefixes []netip.Prefix, a netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
