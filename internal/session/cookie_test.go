package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "keyboard cat"

func signedCookie(secret, sessionID string) string {
	return "s:" + sessionID + "." + Sign(secret, sessionID)
}

func TestVerifyRoundTrip(t *testing.T) {
	sessionID, err := Verify(testSecret, signedCookie(testSecret, "abc123"))
	require.NoError(t, err)
	assert.Equal(t, "abc123", sessionID)
}

func TestVerifySessionIDWithDots(t *testing.T) {
	// The signature sits after the last dot; ids containing dots must survive.
	sessionID, err := Verify(testSecret, signedCookie(testSecret, "a.b.c"))
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", sessionID)
}

func TestVerifyTamperedValue(t *testing.T) {
	cookie := signedCookie(testSecret, "abc123")
	tampered := "s:evil99" + cookie[len("s:abc123"):]

	_, err := Verify(testSecret, tampered)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyWrongSecret(t *testing.T) {
	_, err := Verify("other secret", signedCookie(testSecret, "abc123"))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyUnsignedValue(t *testing.T) {
	_, err := Verify(testSecret, "abc123")
	assert.ErrorIs(t, err, ErrNotSigned)
}

func TestVerifyMissingSignature(t *testing.T) {
	_, err := Verify(testSecret, "s:abc123")
	assert.ErrorIs(t, err, ErrNotSigned)
}

func TestParseRecord(t *testing.T) {
	rec, err := parseRecord([]byte(`{"cookie":{"path":"/"},"passport":{"user":"8f14e45f-ceea-467f-a8c9-8e8c671b40b1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "8f14e45f-ceea-467f-a8c9-8e8c671b40b1", rec.Passport.User)
}

func TestParseRecordWithoutIdentity(t *testing.T) {
	_, err := parseRecord([]byte(`{"cookie":{"path":"/"}}`))
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestParseRecordMalformed(t *testing.T) {
	_, err := parseRecord([]byte(`not json`))
	assert.Error(t, err)
}
