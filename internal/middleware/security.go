package middleware

import (
	"github.com/gin-gonic/gin"
)

// Security adds the response headers appropriate for a JSON API that
// handles personal data.
func Security() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		// Registration responses echo contact details
		h.Set("Cache-Control", "no-store")

		c.Next()
	}
}
