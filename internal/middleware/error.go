package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-reports/pkg/httputil"
	"github.com/jwalitptl/clinic-reports/pkg/logger"
)

// ErrorHandler logs errors attached with c.Error and answers for handlers
// that attached one without writing a response.
func ErrorHandler(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		log := logger.FromContext(c.Request.Context(), base)
		for _, e := range c.Errors {
			log.Debug("Request error",
				"error", e.Err.Error(),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"meta", e.Meta,
			)
		}

		if c.Writer.Written() {
			return
		}

		httputil.RespondWithError(c, c.Errors.Last().Err)
	}
}
