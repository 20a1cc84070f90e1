package middleware

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// IPFilter rejects webhook calls whose source IP is not in allowedIPs.
// Entries are single addresses or CIDR ranges; an empty list allows all.
// The check uses RemoteAddr, so behind a proxy chi's RealIP must run first.
func IPFilter(allowedIPs []string, log *zap.Logger) func(http.Handler) http.Handler {
	nets := parseAllowlist(allowedIPs, log)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := clientIP(r)

			if !isIPAllowed(clientIP, nets) {
				log.Warn("request from unlisted source ip blocked",
					zap.String("ip", clientIP),
					zap.String("path", r.URL.Path),
				)
				writeError(w, http.StatusForbidden, "source ip not allowed")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseAllowlist(allowed []string, log *zap.Logger) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(allowed))
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			if strings.Contains(entry, ":") {
				entry += "/128"
			} else {
				entry += "/32"
			}
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			log.Warn("ignoring invalid allowlist entry", zap.String("entry", entry))
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

// clientIP strips the port from RemoteAddr when there is one
func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func isIPAllowed(clientIP string, nets []*net.IPNet) bool {
	if len(nets) == 0 {
		return true
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}

	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
