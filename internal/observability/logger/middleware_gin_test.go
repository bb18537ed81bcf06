package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/quoteflow/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestGinMiddlewareSetsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestGinMiddlewarePropagatesIncomingRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))

	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = obscontext.RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "abc-123", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "abc-123", seen)
}

func TestGinMiddlewareLogsDocumentID(t *testing.T) {
	logs := observeGlobal(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/invoices/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/77", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("http.request").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "77", entries[0].ContextMap()["invoice_id"])
		assert.Equal(t, "/api/invoices/:id", entries[0].ContextMap()["route"])
	}
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/invoices", http.StatusInternalServerError, "internal_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/invoices/:id", http.StatusNotFound, "not_found"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/invoices", http.StatusBadRequest, "validation_error"))
}
