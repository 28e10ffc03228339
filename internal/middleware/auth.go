package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserIDKey is the gin context key the authenticated identity is stored under.
const UserIDKey = "userID"

// Authenticator resolves a raw session cookie to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, rawCookie string) (uuid.UUID, error)
}

// SessionAuth authenticates requests with the shared signed session cookie.
// The websocket handshake runs the identical verification; the cookie is the
// one trust boundary for both surfaces.
func SessionAuth(auth Authenticator, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawCookie, err := c.Cookie(cookieName)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		userID, err := auth.Authenticate(c.Request.Context(), rawCookie)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}
