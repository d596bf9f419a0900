package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrThrottled means the upstream rejected the call for rate reasons.
	// The chain excludes the provider for the rest of the batch.
	ErrThrottled = errors.New("provider throttled")

	// ErrAssetUnsupported means the provider has no symbol for the asset.
	ErrAssetUnsupported = errors.New("asset not supported by provider")

	// ErrAllProvidersFailed means no provider in the chain produced a price.
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// PricePoint is one (time, price) sample from an upstream series.
type PricePoint struct {
	Time  time.Time
	Price float64
}

// Provider fetches a historical price series for one asset.
type Provider interface {
	Name() string
	FetchRange(ctx context.Context, asset string, from, to time.Time) ([]PricePoint, error)
}

// matchSeries resolves each target time to the closest sample within
// tolerance. Targets with no sample close enough stay unresolved.
func matchSeries(targets []time.Time, points []PricePoint, tolerance time.Duration) map[time.Time]float64 {
	out := make(map[time.Time]float64, len(targets))
	if len(points) == 0 {
		return out
	}
	for _, target := range targets {
		best := -1
		var bestDiff time.Duration
		for i, p := range points {
			diff := p.Time.Sub(target)
			if diff < 0 {
				diff = -diff
			}
			if diff > tolerance {
				continue
			}
			if best < 0 || diff < bestDiff {
				best = i
				bestDiff = diff
			}
		}
		if best >= 0 {
			out[target] = points[best].Price
		}
	}
	return out
}
