package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-reports/pkg/logger"
)

// Logger logs one line per request. Bodies are never logged: report
// payloads carry patient data.
func Logger(base *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log := logger.FromContext(c.Request.Context(), base)
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"bytes", c.Writer.Size(),
			"ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}

		switch {
		case status >= 500:
			log.Error(lastError(c), "Server error", fields...)
		case status >= 400:
			log.Warn(lastError(c), "Client error", fields...)
		default:
			log.Info("Request processed", fields...)
		}
	}
}

func lastError(c *gin.Context) error {
	if e := c.Errors.Last(); e != nil {
		return e.Err
	}
	return nil
}
