package provider

import (
	"context"
	"errors"
	"sort"
	"time"

	"predeval/internal/domain/repository"
	"predeval/pkg/logger"
)

// Chain tries providers in priority order until a batch of bucket times is
// resolved. A throttled provider is excluded for the remainder of the batch
// so later runs go straight to the next one in line.
type Chain struct {
	providers   []Provider
	callTimeout time.Duration
	maxGap      time.Duration
	tolerance   time.Duration
	log         *logger.Logger
	metrics     repository.Metrics
}

// NewChain creates a provider chain. tolerance bounds how far a returned
// sample may sit from a requested bucket and still count as its price.
func NewChain(providers []Provider, callTimeout, maxGap, tolerance time.Duration, log *logger.Logger, m repository.Metrics) *Chain {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	if maxGap <= 0 {
		maxGap = 30 * time.Minute
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &Chain{
		providers:   providers,
		callTimeout: callTimeout,
		maxGap:      maxGap,
		tolerance:   tolerance,
		log:         log,
		metrics:     m,
	}
}

// FetchBatch resolves prices for the given bucket times. The result holds
// every bucket that could be resolved; callers treat absent buckets as
// still-unknown. ErrAllProvidersFailed is returned only when nothing at all
// resolved and at least one provider was tried.
func (c *Chain) FetchBatch(ctx context.Context, asset string, buckets []time.Time) (map[time.Time]float64, error) {
	resolved := make(map[time.Time]float64, len(buckets))
	if len(buckets) == 0 {
		return resolved, nil
	}

	sorted := make([]time.Time, len(buckets))
	copy(sorted, buckets)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	excluded := make(map[string]bool)
	tried := false

	for _, run := range groupRuns(sorted, c.maxGap) {
		// a provider with data gaps may satisfy only part of a run; the
		// rest keeps moving down the chain
		pending := run

		for _, p := range c.providers {
			if len(pending) == 0 {
				break
			}
			if excluded[p.Name()] {
				continue
			}
			tried = true

			from := pending[0].Add(-c.tolerance)
			to := pending[len(pending)-1].Add(c.tolerance)

			callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
			points, err := p.FetchRange(callCtx, asset, from, to)
			cancel()

			if err != nil {
				switch {
				case errors.Is(err, ErrThrottled):
					excluded[p.Name()] = true
					c.record(p.Name(), "throttled")
					c.warn(p.Name(), asset, "provider throttled, excluding for batch", err)
				case errors.Is(err, ErrAssetUnsupported):
					excluded[p.Name()] = true
					c.record(p.Name(), "unsupported")
				default:
					c.record(p.Name(), "error")
					c.warn(p.Name(), asset, "provider call failed", err)
				}
				continue
			}

			matched := matchSeries(pending, points, c.tolerance)
			if len(matched) == 0 {
				// a successful call with nothing usable is a failure for
				// fallback purposes
				c.record(p.Name(), "empty")
				continue
			}

			c.record(p.Name(), "ok")
			for bucket, price := range matched {
				resolved[bucket] = price
			}

			rest := make([]time.Time, 0, len(pending)-len(matched))
			for _, b := range pending {
				if _, ok := matched[b]; !ok {
					rest = append(rest, b)
				}
			}
			pending = rest
		}

		if ctx.Err() != nil {
			break
		}
	}

	if len(resolved) == 0 && tried {
		return resolved, ErrAllProvidersFailed
	}
	return resolved, nil
}

// groupRuns splits sorted times into contiguous runs where consecutive
// entries are at most maxGap apart. Each run becomes one ranged call
// instead of a call per bucket.
func groupRuns(sorted []time.Time, maxGap time.Duration) [][]time.Time {
	if len(sorted) == 0 {
		return nil
	}
	runs := make([][]time.Time, 0, 1)
	start := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Sub(sorted[i-1]) > maxGap {
			runs = append(runs, sorted[start:i])
			start = i
		}
	}
	runs = append(runs, sorted[start:])
	return runs
}

func (c *Chain) record(provider, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordProviderCall(provider, outcome)
	}
}

func (c *Chain) warn(provider, asset, msg string, err error) {
	if c.log != nil {
		c.log.Warn(msg,
			logger.String("provider", provider),
			logger.String("asset", asset),
			logger.Error(err),
		)
	}
}
