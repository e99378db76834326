package proxy

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP extracts the real client address from the request. Proxy headers
// are checked in priority order before falling back to the connection
// address; invalid or zero addresses are skipped.
//
// X-Forwarded-For may contain a comma-separated chain ("client, proxy1,
// proxy2"); the leftmost valid address wins.
func ClientIP(r *http.Request) string {
	for _, header := range []string{"CF-Connecting-IP", "X-Forwarded-For", "X-Real-IP"} {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		for _, candidate := range strings.Split(value, ",") {
			if ip := normalizeIP(strings.TrimSpace(candidate)); ip != "" {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := normalizeIP(host); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

func normalizeIP(s string) string {
	ip := net.ParseIP(s)
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
