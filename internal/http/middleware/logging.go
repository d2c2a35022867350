// README: Request logging middleware.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/logx"
)

func Logging(log logx.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			logx.String("method", c.Request.Method),
			logx.String("path", c.Request.URL.Path),
			logx.Int("status", c.Writer.Status()),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
