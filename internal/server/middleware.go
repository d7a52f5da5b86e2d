package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// requestIDMiddleware reuses the caller's request ID or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

// accessLogMiddleware logs one line per request. Health checks log at debug level.
func accessLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).Round(time.Microsecond),
			"request_id", c.GetString(requestIDKey),
		}
		switch {
		case path == "/healthz" || path == "/metrics":
			log.Debug("Request", fields...)
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Warn("Request", fields...)
		default:
			log.Info("Request", fields...)
		}
	}
}

func recoveryHandler(c *gin.Context, recovered any) {
	log.Error("Panic while serving request", "path", c.Request.URL.Path, "request_id", c.GetString(requestIDKey), "panic", recovered)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error"})
}
