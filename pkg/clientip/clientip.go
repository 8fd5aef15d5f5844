package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Resolver extracts the client IP for audit records and rate limiting.
// Proxy headers are only honoured when TrustProxy is set, since clients can
// forge them freely.
type Resolver struct {
	TrustProxy bool
}

// ClientIP returns the client IP from the request.
func (res Resolver) ClientIP(r *http.Request) string {
	if res.TrustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
			return realIP
		}
	}
	return RemoteIP(r)
}

// RemoteIP uses r.RemoteAddr only (no proxy headers).
func RemoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}
