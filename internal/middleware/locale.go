package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-assessment/internal/i18n"
)

// Locale picks the response language. The lang query parameter wins, then
// the locale claim of the learner token, then Accept-Language.
func Locale() gin.HandlerFunc {
	return func(c *gin.Context) {
		var prefs []string
		if q := c.Query("lang"); q != "" {
			prefs = append(prefs, q)
		}
		if claims := GetClaims(c); claims != nil && claims.Locale != "" {
			prefs = append(prefs, claims.Locale)
		}
		if h := c.GetHeader("Accept-Language"); h != "" {
			prefs = append(prefs, h)
		}

		ctx := i18n.WithLocalizer(c.Request.Context(), i18n.NewLocalizer(prefs...))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
