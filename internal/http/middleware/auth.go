// Caller identity from "Authorization: Bearer". Authenticate only
// establishes who the caller is; the services layer decides whether an
// operation needs a signed-in user and which role.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ctxKeyUserID is the Gin context key holding the authenticated principal.
const ctxKeyUserID = "userID"

// TokenVerifier maps a bearer token to a principal id.
type TokenVerifier func(token string) (userID string, err error)

// Authenticate verifies the bearer token, when one is sent, and stores the
// principal id under "userID".
//
// Behavior:
//   - No Authorization header: the request continues anonymously.
//   - A malformed header or a token that fails verification: 401.
//   - WebSocket clients cannot set headers from browsers, so an
//     "access_token" query parameter is accepted on GET requests.
func Authenticate(verify TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, present := bearer(c)
		if !present {
			c.Next()
			return
		}
		uid, err := verify(token)
		if err != nil || uid == "" {
			rid, _ := c.Get(requestIDKey)
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": asString(rid),
				"code":       "unauthorized",
				"message":    "invalid or expired token",
			})
			return
		}
		c.Set(ctxKeyUserID, uid)
		c.Next()
	}
}

// bearer extracts the token. present is true when the client attempted to
// authenticate at all, even with an unusable header.
func bearer(c *gin.Context) (token string, present bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(strings.TrimSpace(h), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", true
		}
		return strings.TrimSpace(tok), true
	}
	if c.Request.Method == http.MethodGet {
		if tok := c.Query("access_token"); tok != "" {
			return tok, true
		}
	}
	return "", false
}

// UserID returns the principal Authenticate stored, or "" for anonymous
// requests.
func UserID(c *gin.Context) string {
	v, _ := c.Get(ctxKeyUserID)
	s, _ := v.(string)
	return s
}
