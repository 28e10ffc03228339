package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDFromRequestUsesHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/chats", nil)
	req.Header.Set("X-Request-Id", "req-42")

	assert.Equal(t, "req-42", RequestIDFromRequest(req))
}

func TestRequestIDFromRequestMintsFallback(t *testing.T) {
	req := httptest.NewRequest("GET", "/chats", nil)

	id := RequestIDFromRequest(req)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
}

func TestIPFromRequestPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "10.0.0.7:52110"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "203.0.113.9", IPFromRequest(req))
}

func TestIPFromRequestStripsPort(t *testing.T) {
	req := httptest.NewRequest("GET", "/ws", nil)
	req.RemoteAddr = "192.0.2.4:61002"

	assert.Equal(t, "192.0.2.4", IPFromRequest(req))
}
