package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/m-mizutani/bookworm/pkg/utils/logging"
	"golang.org/x/time/rate"
)

// requestLogger puts a request-scoped logger into the request context and logs every
// request when it completes. Bodies are not logged; they carry audio and books.
func requestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		logger := base
		if logger == nil {
			logger = logging.From(c.Request.Context())
		}
		logger = logger.With("request_id", uuid.NewString())
		c.Request = c.Request.WithContext(logging.With(c.Request.Context(), logger))

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("HTTP request", attrs...)
		} else {
			logger.Info("HTTP request", attrs...)
		}
	}
}

func questionLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow() {
			logging.From(c.Request.Context()).Warn("question rate limit exceeded")
			c.String(http.StatusTooManyRequests, "Too many questions, please wait a moment")
			c.Abort()
			return
		}
		c.Next()
	}
}
