package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/quoteflow/internal/audit"
	auditdomain "github.com/smallbiznis/quoteflow/internal/audit/domain"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	"github.com/smallbiznis/quoteflow/internal/client"
	clientdomain "github.com/smallbiznis/quoteflow/internal/client/domain"
	"github.com/smallbiznis/quoteflow/internal/config"
	"github.com/smallbiznis/quoteflow/internal/identity"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	"github.com/smallbiznis/quoteflow/internal/invoice"
	invoicedomain "github.com/smallbiznis/quoteflow/internal/invoice/domain"
	"github.com/smallbiznis/quoteflow/internal/numbering"
	"github.com/smallbiznis/quoteflow/internal/observability"
	obsmiddleware "github.com/smallbiznis/quoteflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/quoteflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/quoteflow/internal/observability/tracing"
	"github.com/smallbiznis/quoteflow/internal/quote"
	quotedomain "github.com/smallbiznis/quoteflow/internal/quote/domain"
	"github.com/smallbiznis/quoteflow/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	audit.Module,
	identity.Module,
	ratelimit.Module,
	numbering.Module,
	client.Module,
	quote.Module,
	invoice.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) {
		s.RegisterRoutes()
	}),
	fx.Invoke(RunHTTP),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
			AllowHeaders:     []string{"Authorization", "Content-Type", HeaderBusiness, "X-Request-Id"},
			ExposeHeaders:    []string{"X-Request-Id", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config

	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	identitySvc identitydomain.Service
	clientSvc   clientdomain.Service
	quoteSvc    quotedomain.Service
	invoiceSvc  invoicedomain.Service

	obsMetrics    *obsmetrics.Metrics
	createLimiter *ratelimit.DocumentCreateLimiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service
	IdentitySvc identitydomain.Service
	ClientSvc   clientdomain.Service
	QuoteSvc    quotedomain.Service
	InvoiceSvc  invoicedomain.Service

	ObsMetrics    *obsmetrics.Metrics              `optional:"true"`
	CreateLimiter *ratelimit.DocumentCreateLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		identitySvc:   p.IdentitySvc,
		clientSvc:     p.ClientSvc,
		quoteSvc:      p.QuoteSvc,
		invoiceSvc:    p.InvoiceSvc,
		obsMetrics:    p.ObsMetrics,
		createLimiter: p.CreateLimiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")
	api.Use(s.AuthRequired(), s.BusinessContext())

	// -------- Clients --------
	api.POST("/clients", s.CreateClient)
	api.GET("/clients/:id", s.GetClientByID)

	// -------- Quotes --------
	api.POST("/quotes", s.CreateQuote)
	api.GET("/quotes/:id", s.GetQuoteByID)
	api.PUT("/quotes/:id/items", s.ReplaceQuoteItems)
	api.POST("/quotes/:id/send", s.SendQuote)
	api.POST("/quotes/:id/accept", s.AcceptQuote)
	api.POST("/quotes/:id/reject", s.RejectQuote)
	api.POST("/quotes/:id/create-invoice", s.DocumentCreateRateLimit(), s.CreateInvoiceFromQuote)

	// -------- Invoices --------
	api.POST("/invoices", s.DocumentCreateRateLimit(), s.CreateInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PATCH("/invoices/:id", s.UpdateInvoice)
	api.POST("/invoices/:id/status", s.ChangeInvoiceStatus)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}
