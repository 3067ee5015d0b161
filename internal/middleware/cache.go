package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// PrivateCache lets only the requesting client cache the response, for
// maxAgeSeconds. Meant for immutable per-learner data such as stored attempts.
func PrivateCache(maxAgeSeconds int) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", maxAgeSeconds))
		c.Next()
	}
}
