package provider

import (
	"context"
	"time"

	"predeval/internal/provider/ratelimit"
)

// Limited wraps a provider with a local token bucket so we throttle
// ourselves before the upstream does.
type Limited struct {
	inner        Provider
	limiter      *ratelimit.Limiter
	capacity     float64
	refillPerSec float64
}

// NewLimited wraps p with a token bucket of the given capacity refilled at
// requestsPerMinute.
func NewLimited(p Provider, limiter *ratelimit.Limiter, requestsPerMinute float64, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &Limited{
		inner:        p,
		limiter:      limiter,
		capacity:     float64(burst),
		refillPerSec: requestsPerMinute / 60.0,
	}
}

func (l *Limited) Name() string { return l.inner.Name() }

func (l *Limited) FetchRange(ctx context.Context, asset string, from, to time.Time) ([]PricePoint, error) {
	if !l.limiter.Allow(l.inner.Name(), l.capacity, l.refillPerSec) {
		return nil, ErrThrottled
	}
	return l.inner.FetchRange(ctx, asset, from, to)
}
