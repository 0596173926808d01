package gateway

import (
	"net"
	"net/http"
	"strings"
)

// ResolveClientIP picks the client address using a fixed header precedence
// so a spoofed hop cannot dodge ban checks or counter buckets: the edge
// CDN header wins, then the first hop of X-Forwarded-For, then X-Real-IP,
// then the socket address.
func ResolveClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" && net.ParseIP(ip) != nil {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// isLoopback reports whether the address is a loopback IP.
func isLoopback(address string) bool {
	ip := net.ParseIP(address)
	return ip != nil && ip.IsLoopback()
}
