package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"bytebits/internal/session"
	"bytebits/internal/transport/http/response"
)

const (
	ContextSessionIDKey = "session_id"
	ContextUserIDKey    = "user_id"
)

// LoadSession resolves the session cookie into the request context. It never
// rejects a request; route guards decide what anonymous requests may do.
func LoadSession(store *session.Store, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(cookieName)
		if err != nil || sid == "" {
			c.Next()
			return
		}

		data, err := store.Get(c.Request.Context(), sid)
		if err != nil || data == nil {
			c.Next()
			return
		}

		c.Set(ContextSessionIDKey, sid)
		if data.UserID != 0 {
			c.Set(ContextUserIDKey, data.UserID)
		}
		c.Next()
	}
}

// RequireAuth gates a route on an authenticated session. Browsers are
// redirected to the login page; JSON clients get a 401 envelope.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(ContextUserIDKey); ok {
			c.Next()
			return
		}

		if wantsJSON(c) {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "You must be logged in.")
		} else {
			c.Redirect(http.StatusFound, "/auth/login")
		}
		c.Abort()
	}
}

// SessionID returns the current request's session id, if any.
func SessionID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextSessionIDKey)
	if !ok {
		return "", false
	}
	sid, ok := v.(string)
	return sid, ok
}

// UserID returns the authenticated account id, if any.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func wantsJSON(c *gin.Context) bool {
	accept := c.GetHeader("Accept")
	return strings.Contains(accept, "application/json") ||
		strings.Contains(c.ContentType(), "application/json")
}
