package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// trustedProxies is a parsed list of proxy networks.
type trustedProxies []*net.IPNet

// parseTrustedProxies accepts CIDRs and bare IPs; invalid entries are logged
// and skipped.
func parseTrustedProxies(entries []string) trustedProxies {
	var nets trustedProxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if _, network, err := net.ParseCIDR(entry); err == nil {
			nets = append(nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "entry", entry)
			continue
		}
		bits := 128
		if ip.To4() != nil {
			bits = 32
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

func (t trustedProxies) contains(ip net.IP) bool {
	if ip == nil {
		return false
	}
	for _, n := range t {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// clientIP returns the forwarded client address, or "" if the headers carry
// no valid IP. X-Real-IP wins over the first X-Forwarded-For hop.
func clientIP(h http.Header) string {
	if rip := strings.TrimSpace(h.Get("X-Real-IP")); rip != "" {
		if ip := net.ParseIP(rip); ip != nil {
			return ip.String()
		}
		return ""
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}
	return ""
}

// TrustedRealIP rewrites RemoteAddr from forwarding headers, but only for
// requests arriving from one of the trusted proxies. With no proxies
// configured the headers are ignored.
func TrustedRealIP(proxies []string) func(http.Handler) http.Handler {
	trusted := parseTrustedProxies(proxies)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if trusted.contains(remoteIP(r.RemoteAddr)) {
				if ip := clientIP(r.Header); ip != "" {
					r.RemoteAddr = ip
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(addr)
}
