package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bytebits/internal/ratelimit"
)

// RateLimit rejects clients that exceed the fixed-window cap.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"status": http.StatusTooManyRequests,
				"error":  "Too many requests, please try again later.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
