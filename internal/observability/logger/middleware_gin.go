package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	auditcontext "github.com/smallbiznis/quoteflow/internal/auditcontext"
	obscontext "github.com/smallbiznis/quoteflow/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const requestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging. ErrorClassifier maps the last
// handler error to an error kind and code for the log line.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// documentParams maps a route prefix to the log field naming its :id.
var documentParams = []struct {
	prefix string
	field  string
}{
	{"/api/quotes/", "quote_id"},
	{"/api/invoices/", "invoice_id"},
	{"/api/clients/", "client_id"},
}

// GinMiddleware assigns a request id, seeds the audit context with the
// caller's network details and writes one log line per request.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := obscontext.WithRequestID(c.Request.Context(), requestID)
		ctx = auditcontext.WithRequestID(ctx, requestID)
		ctx = auditcontext.WithIPAddress(ctx, c.ClientIP())
		ctx = auditcontext.WithUserAgent(ctx, c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int64("bytes_in", max(c.Request.ContentLength, 0)),
			zap.Int("bytes_out", max(c.Writer.Size(), 0)),
		}
		if field, id := documentField(route, c.Param("id")); field != "" {
			fields = append(fields, zap.String(field, id))
		}

		var errorCode string
		if last := c.Errors.Last(); last != nil {
			var errorKind string
			if cfg.ErrorClassifier != nil {
				errorKind, errorCode = cfg.ErrorClassifier(last.Err)
			}
			fields = append(fields,
				zap.String("error_kind", errorKind),
				zap.String("error_code", errorCode),
			)
			if cfg.Debug && status >= http.StatusInternalServerError {
				fields = append(fields, zap.Error(last.Err))
			}
		}

		// The handler chain may have added business and actor to the context.
		if ce := FromContext(c.Request.Context()).Check(requestLevel(route, status, errorCode), "http.request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(requestIDHeader, requestID)
	return requestID
}

func documentField(route, id string) (string, string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ""
	}
	for _, p := range documentParams {
		if strings.HasPrefix(route, p.prefix) {
			return p.field, id
		}
	}
	return "", ""
}

// requestLevel logs probes at debug, server failures at error and client
// failures at warn. Validation failures stay at info.
func requestLevel(route string, status int, errorCode string) zapcore.Level {
	switch {
	case route == "/health" || route == "/metrics":
		return zapcore.DebugLevel
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest && errorCode != "validation_error":
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
