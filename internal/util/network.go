package util

import (
	"net"
	"net/http"
	"strings"
)

// GetRemoteIP extracts the client address of a request, preferring the
// first X-Forwarded-For entry set by a reverse proxy
func GetRemoteIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
