package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	ErrNotSigned    = errors.New("cookie value is not signed")
	ErrBadSignature = errors.New("cookie signature mismatch")
)

// Verify checks the signature of an express-style signed session cookie and
// returns the embedded session id. The value is "s:<id>.<sig>" where sig is
// the unpadded base64 HMAC-SHA256 of the id under the shared session secret.
// The same verification guards the HTTP middleware and the websocket
// handshake; they must never diverge.
func Verify(secret, value string) (string, error) {
	if !strings.HasPrefix(value, "s:") {
		return "", ErrNotSigned
	}
	value = value[2:]

	dot := strings.LastIndex(value, ".")
	if dot < 0 {
		return "", ErrNotSigned
	}
	sessionID, signature := value[:dot], value[dot+1:]

	if !hmac.Equal([]byte(signature), []byte(Sign(secret, sessionID))) {
		return "", ErrBadSignature
	}
	return sessionID, nil
}

// Sign computes the signature part for a session id. Exposed for tests and
// local tooling; the HTTP session layer is the writer in production.
func Sign(secret, sessionID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(sessionID))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return strings.TrimRight(sig, "=")
}
