package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	csrfCookieName  = "csrf_token"
	csrfHeaderName  = "X-CSRF-Token"
	csrfFormField   = "_csrf"
	csrfCookieTTL   = 24 * 60 * 60
	csrfErrorBody   = "Invalid CSRF token or session expired."
)

// CSRF is a double-submit-cookie guard. Safe methods ensure the token cookie
// exists; mutating methods must echo it back in a header or form field.
func CSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			if _, err := c.Cookie(csrfCookieName); err != nil {
				c.SetCookie(csrfCookieName, uuid.NewString(), csrfCookieTTL, "/", "", false, false)
			}
			c.Next()
			return
		}

		cookie, err := c.Cookie(csrfCookieName)
		if err != nil || cookie == "" {
			c.String(http.StatusForbidden, csrfErrorBody)
			c.Abort()
			return
		}

		submitted := c.GetHeader(csrfHeaderName)
		if submitted == "" {
			submitted = c.PostForm(csrfFormField)
		}
		if subtle.ConstantTimeCompare([]byte(cookie), []byte(submitted)) != 1 {
			c.String(http.StatusForbidden, csrfErrorBody)
			c.Abort()
			return
		}
		c.Next()
	}
}
