package pricestore

import (
	"context"
	"errors"
	"time"

	"predeval/internal/domain/models"
	"predeval/internal/domain/repository"
	"predeval/pkg/cache"
	"predeval/pkg/logger"
	"predeval/pkg/util"
)

// Store is the bucketed price cache. Keys are (asset, bucket start) pairs
// and a written price is final truth for its bucket.
//
// The backend is optional: with a nil backend, or when the backend errors,
// every read is a miss and every write is a no-op. Storage trouble slows
// the system down but never produces a wrong answer.
type Store struct {
	backend cache.Service
	width   time.Duration
	log     *logger.Logger
	metrics repository.Metrics
}

// New creates a price store over the given cache backend.
func New(backend cache.Service, width time.Duration, log *logger.Logger, m repository.Metrics) *Store {
	if width <= 0 {
		width = 5 * time.Minute
	}
	return &Store{
		backend: backend,
		width:   width,
		log:     log,
		metrics: m,
	}
}

// Width returns the bucket width.
func (s *Store) Width() time.Duration {
	return s.width
}

// Bucket maps a timestamp to the start of its bucket. Bucket boundaries
// map to themselves.
func (s *Store) Bucket(t time.Time) time.Time {
	return util.BucketFloor(t, s.width)
}

// Key returns the cache key for an (asset, bucket) pair.
func (s *Store) Key(asset string, bucket time.Time) string {
	return cache.GenerateKeyWithParams("price", asset, bucket.Unix())
}

// Get looks up the price covering t. The second return is false on a miss,
// including every degraded-backend case.
func (s *Store) Get(ctx context.Context, asset string, t time.Time) (models.ActualPrice, bool) {
	if s.backend == nil {
		s.miss(asset)
		return models.ActualPrice{}, false
	}

	bucket := s.Bucket(t)
	var p models.ActualPrice
	err := s.backend.Get(ctx, s.Key(asset, bucket), &p)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.degraded("get", err)
		}
		s.miss(asset)
		return models.ActualPrice{}, false
	}

	if s.metrics != nil {
		s.metrics.RecordCacheHit(asset)
	}
	return p, true
}

// GetBatch looks up prices for many timestamps at once. The result maps
// bucket start to price; absent buckets are misses.
func (s *Store) GetBatch(ctx context.Context, asset string, times []time.Time) map[time.Time]models.ActualPrice {
	found := make(map[time.Time]models.ActualPrice)
	if s.backend == nil || len(times) == 0 {
		for range times {
			s.miss(asset)
		}
		return found
	}

	buckets := make([]time.Time, 0, len(times))
	seen := make(map[time.Time]struct{}, len(times))
	for _, t := range times {
		b := s.Bucket(t)
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		buckets = append(buckets, b)
	}

	keys := make([]string, len(buckets))
	for i, b := range buckets {
		keys[i] = s.Key(asset, b)
	}

	typed, err := cache.MGetTyped[models.ActualPrice](ctx, s.backend, keys...)
	if err != nil {
		s.degraded("mget", err)
		for range buckets {
			s.miss(asset)
		}
		return found
	}

	for i, b := range buckets {
		if p, ok := typed[keys[i]]; ok {
			found[b] = p
			if s.metrics != nil {
				s.metrics.RecordCacheHit(asset)
			}
		} else {
			s.miss(asset)
		}
	}
	return found
}

// Put stores a resolved price under its bucket. Write errors are logged
// and swallowed.
func (s *Store) Put(ctx context.Context, p models.ActualPrice) {
	if s.backend == nil {
		return
	}
	p.Bucket = s.Bucket(p.Bucket)
	if err := s.backend.Set(ctx, s.Key(p.Asset, p.Bucket), p, 0); err != nil {
		s.degraded("set", err)
	}
}

// PutBatch stores many resolved prices in one backend round trip.
func (s *Store) PutBatch(ctx context.Context, prices []models.ActualPrice) {
	if s.backend == nil || len(prices) == 0 {
		return
	}
	values := make(map[string]interface{}, len(prices))
	for _, p := range prices {
		p.Bucket = s.Bucket(p.Bucket)
		values[s.Key(p.Asset, p.Bucket)] = p
	}
	if err := s.backend.MSet(ctx, values, 0); err != nil {
		s.degraded("mset", err)
	}
}

func (s *Store) miss(asset string) {
	if s.metrics != nil {
		s.metrics.RecordCacheMiss(asset)
	}
}

func (s *Store) degraded(op string, err error) {
	if s.log != nil {
		s.log.Warn("price store degraded, treating as miss",
			logger.String("op", op),
			logger.Error(err),
		)
	}
}
