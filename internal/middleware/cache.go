package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// CacheControl sets the Cache-Control header for responses.
func CacheControl(directive string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", directive)
		c.Next()
	}
}

// NoStore keeps session state out of browser and proxy caches.
func NoStore() gin.HandlerFunc {
	return CacheControl("no-store")
}

// MaxAge allows private caching for the given number of seconds.
func MaxAge(seconds int) gin.HandlerFunc {
	return CacheControl(fmt.Sprintf("private, max-age=%d", seconds))
}
