package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/quoteflow/internal/auditcontext"
	"github.com/smallbiznis/quoteflow/internal/businesscontext"
	identitydomain "github.com/smallbiznis/quoteflow/internal/identity/domain"
	obscontext "github.com/smallbiznis/quoteflow/internal/observability/context"
	"github.com/smallbiznis/quoteflow/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderBusiness = "X-Business-ID"

	rateLimitReasonBusinessRate = "business-rate"
)

// AuthRequired resolves the bearer token into an actor and stores it in the
// request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor, err := s.identitySvc.ResolveToken(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := identitydomain.WithActor(c.Request.Context(), actor)
		ctx = auditcontext.WithActor(ctx, actor.Type, actor.IDString())
		ctx = obscontext.WithActor(ctx, actor.Type, actor.IDString())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// BusinessContext selects the active business from the X-Business-ID header,
// or from the caller's only membership when the header is absent.
func (s *Server) BusinessContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		actor, ok := identitydomain.ActorFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var businessID snowflake.ID
		if header := strings.TrimSpace(c.GetHeader(HeaderBusiness)); header != "" {
			parsed, err := snowflake.ParseString(header)
			if err != nil || parsed == 0 {
				AbortWithError(c, newValidationError("business_id", "invalid_business_id", "invalid X-Business-ID header"))
				return
			}
			businessID = parsed
		} else {
			memberships, err := s.identitySvc.Memberships(ctx, actor.UserID)
			if err != nil {
				AbortWithError(c, err)
				return
			}
			switch len(memberships) {
			case 0:
				AbortWithError(c, identitydomain.ErrNoBusiness)
				return
			case 1:
				businessID = memberships[0].BusinessID
			default:
				AbortWithError(c, newValidationError("business_id", "business_required", "X-Business-ID header is required"))
				return
			}
		}

		ctx = businesscontext.WithBusinessID(ctx, businessID)
		ctx = obscontext.WithBusinessID(ctx, businessID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// DocumentCreateRateLimit throttles invoice-creating endpoints per business.
func (s *Server) DocumentCreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.createLimiter == nil || !s.createLimiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		businessID, ok := businesscontext.BusinessIDFromContext(ctx)
		if !ok || businessID == 0 {
			AbortWithError(c, ErrForbidden)
			return
		}

		result, err := s.createLimiter.Allow(ctx, businessID.String())
		if err != nil {
			// Redis trouble must not block invoicing.
			logger.FromContext(ctx).Warn("document create rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !result.Allowed {
			endpoint := normalizeRateLimitEndpoint(c)
			logger.FromContext(ctx).Warn("document create rate limit exceeded",
				zap.String("reason", rateLimitReasonBusinessRate),
				zap.String("endpoint", endpoint),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, endpoint, rateLimitReasonBusinessRate)

			retryAfter := int(result.RetryAfter.Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonBusinessRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Next()
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
