package ratelimit

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/quoteflow/internal/config"
)

const keyDocumentCreate = "quoteflow:ratelimit:create:%s"

// DocumentCreateLimiter throttles invoice creation per business.
type DocumentCreateLimiter struct {
	bucket *TokenBucket
	limit  Limit
}

func NewDocumentCreateLimiter(cfg config.Config, bucket *TokenBucket) *DocumentCreateLimiter {
	if !cfg.RateLimit.Enabled || bucket == nil {
		return nil
	}
	return &DocumentCreateLimiter{
		bucket: bucket,
		limit:  Limit{Rate: cfg.RateLimit.Rate, Burst: cfg.RateLimit.Burst},
	}
}

func (l *DocumentCreateLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *DocumentCreateLimiter) Allow(ctx context.Context, businessID string) (Result, error) {
	if !l.Enabled() {
		return Result{Allowed: true}, nil
	}
	return l.bucket.Take(ctx, fmt.Sprintf(keyDocumentCreate, strings.TrimSpace(businessID)), l.limit)
}
