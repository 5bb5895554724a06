package scanning

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying Extractor.
type RateLimited struct {
	next    Extractor
	limiter *rate.Limiter
}

// NewRateLimited allows perMinute extraction calls per minute with a burst of
// one. A non-positive perMinute disables the limit.
func NewRateLimited(next Extractor, perMinute float64) *RateLimited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Extract waits for the limiter, then delegates.
func (r *RateLimited) Extract(ctx context.Context, doc Document) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}
	return r.next.Extract(ctx, doc)
}

// Close closes the underlying extractor
func (r *RateLimited) Close() error {
	return r.next.Close()
}
