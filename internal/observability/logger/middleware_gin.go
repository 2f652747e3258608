package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// Gin context keys handlers may set to enrich the request log line.
var annotationKeys = []string{"metric_name", "invoice_id", "payment_id", "period"}

type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps a handler error to its response type and code.
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id and writes one "http.request" line per
// request. Tenant and actor fields are picked up from the context once the
// session middleware has run.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		if size := c.Writer.Size(); size > 0 {
			fields = append(fields, zap.Int("bytes_out", size))
		}
		for _, key := range annotationKeys {
			if v := strings.TrimSpace(c.GetString(key)); v != "" {
				fields = append(fields, zap.String(key, v))
			}
		}

		var errorType string
		if last := c.Errors.Last(); last != nil && cfg.ErrorClassifier != nil {
			var code string
			errorType, code = cfg.ErrorClassifier(last.Err)
			fields = append(fields, zap.String("error_type", errorType), zap.String("error_code", code))
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Stack("stack"))
			}
		}

		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status, errorType), "http.request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// requestLevel keeps health checks and rejected meter readings out of info logs
// while surfacing auth failures and server errors.
func requestLevel(route string, status int, errorType string) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return zapcore.WarnLevel
	case route == "/api/v1/usage" && errorType == "validation_error":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
