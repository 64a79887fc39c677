package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/dogblood-backend/internal/domain"
)

// UserKey holds the authenticated *domain.User in the Gin context.
const UserKey = "user"

// Authenticator resolves a bearer token to an active user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// RequireAuth rejects requests without a valid "Authorization: Bearer" token
// with 401. Every failure cause (missing header, bad signature, expiry,
// unknown or inactive user) gets the same response.
func RequireAuth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c)
			return
		}
		u, err := authn.Authenticate(c.Request.Context(), tok)
		if err != nil || u == nil {
			unauthorized(c)
			return
		}

		c.Set(UserIDKey, u.ID)
		c.Set(UserKey, u)
		attachLogger(c, LoggerFrom(c).With().Str("user_id", u.ID).Logger())
		c.Next()
	}
}

// CurrentUser returns the user stored by RequireAuth.
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	u, ok := c.Value(UserKey).(*domain.User)
	return u, ok && u != nil
}

func bearerToken(h string) (string, bool) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

func unauthorized(c *gin.Context) {
	c.Header("WWW-Authenticate", `Bearer realm="dogbloodgpt"`)
	abortJSON(c, http.StatusUnauthorized, "unauthorized", "could not validate credentials")
}
