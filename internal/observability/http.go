package observability

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Request metadata helpers shared by the HTTP handlers and the websocket
// handshake, used to correlate audit records and connection events.

// RequestIDFromRequest returns the caller-supplied request id, minting one
// when the header is absent so every audit record and connection event stays
// correlatable.
func RequestIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return uuid.NewString()
}

// DeviceIDFromRequest returns the client-reported device id, if any.
func DeviceIDFromRequest(r *http.Request) string {
	return r.Header.Get("X-Device-Id")
}

// IPFromRequest resolves the client address, preferring the first hop of
// X-Forwarded-For when a proxy sits in front of the service.
func IPFromRequest(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
