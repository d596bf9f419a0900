package reconcile

import (
	"context"
	"fmt"
	"sort"
	"time"

	"predeval/internal/domain/models"
	"predeval/internal/domain/repository"
	"predeval/internal/pricestore"
	"predeval/pkg/logger"
)

// PriceFetcher resolves prices for bucket times from upstream providers.
type PriceFetcher interface {
	FetchBatch(ctx context.Context, asset string, buckets []time.Time) (map[time.Time]float64, error)
}

// Reconciler aligns a miner's forecasts with realized prices. Each pass is
// idempotent: prices already in the store are reused, only unresolved
// buckets go upstream, and concurrent passes for the same buckets share a
// single fetch.
type Reconciler struct {
	source       repository.PredictionSource
	store        *pricestore.Store
	fetcher      PriceFetcher
	co           *coalescer
	horizon      time.Duration
	passDeadline time.Duration
	maxRows      int
	log          *logger.Logger
	metrics      repository.Metrics
	now          func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithMaxRows caps how many most-recent predictions a pass evaluates.
func WithMaxRows(n int) Option {
	return func(r *Reconciler) { r.maxRows = n }
}

// New creates a Reconciler.
func New(source repository.PredictionSource, store *pricestore.Store, fetcher PriceFetcher,
	horizon, passDeadline time.Duration, log *logger.Logger, m repository.Metrics, opts ...Option) *Reconciler {
	if horizon <= 0 {
		horizon = time.Hour
	}
	if passDeadline <= 0 {
		passDeadline = 30 * time.Second
	}
	r := &Reconciler{
		source:       source,
		store:        store,
		fetcher:      fetcher,
		co:           newCoalescer(),
		horizon:      horizon,
		passDeadline: passDeadline,
		log:          log,
		metrics:      m,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile runs one pass for a miner's asset and returns aligned points in
// prediction-time order, plus fetch statistics. The only fatal error is an
// unreadable prediction source; every price-side failure degrades to
// has_actual=false.
func (r *Reconciler) Reconcile(ctx context.Context, miner, asset string) ([]models.AlignedPoint, models.FetchStats, error) {
	start := r.now()
	asset = models.NormalizeAsset(asset)
	var stats models.FetchStats

	records, err := r.source.ListPredictions(ctx, miner, asset)
	if err != nil {
		return nil, stats, fmt.Errorf("list predictions for %s/%s: %w", miner, asset, err)
	}

	records = prepare(records, r.maxRows, func(rec models.PredictionRecord) time.Time {
		return r.store.Bucket(rec.PredictionTime.Add(r.horizon))
	})
	now := r.now()

	points := make([]models.AlignedPoint, len(records))
	evalTimes := make([]time.Time, 0, len(records))
	for i, rec := range records {
		evalAt := rec.PredictionTime.Add(r.horizon)
		points[i] = models.AlignedPoint{
			Timestamp:      rec.PredictionTime,
			PredictionTime: rec.PredictionTime,
			EvaluationTime: evalAt,
			Prediction:     rec.Predicted,
			IntervalLower:  rec.IntervalLower,
			IntervalUpper:  rec.IntervalUpper,
		}
		if evalAt.After(now) {
			stats.Future++
			continue
		}
		stats.TotalEvaluable++
		evalTimes = append(evalTimes, evalAt)
	}

	prices := r.resolve(ctx, asset, evalTimes)

	for i := range points {
		if points[i].EvaluationTime.After(now) {
			continue
		}
		bucket := r.store.Bucket(points[i].EvaluationTime)
		if price, ok := prices[bucket]; ok {
			p := price
			points[i].ActualPrice = &p
			points[i].HasActual = true
			stats.Fetched++
		} else {
			stats.Failed++
		}
	}

	if r.metrics != nil {
		r.metrics.RecordReconcileDuration(asset, r.now().Sub(start).Seconds())
	}
	if r.log != nil {
		r.log.Debug("reconcile pass done",
			logger.String("miner", miner),
			logger.String("asset", asset),
			logger.Int("evaluable", stats.TotalEvaluable),
			logger.Int("fetched", stats.Fetched),
			logger.Int("failed", stats.Failed),
			logger.Int("future", stats.Future),
		)
	}
	return points, stats, nil
}

// resolve returns bucket->price for as many evaluation times as possible,
// consulting the store first, then sharing one upstream fetch per bucket
// across concurrent callers.
func (r *Reconciler) resolve(ctx context.Context, asset string, evalTimes []time.Time) map[time.Time]float64 {
	resolved := make(map[time.Time]float64)
	if len(evalTimes) == 0 {
		return resolved
	}

	cached := r.store.GetBatch(ctx, asset, evalTimes)
	for bucket, p := range cached {
		resolved[bucket] = p.Price
	}

	var missing []time.Time
	seen := make(map[time.Time]struct{})
	for _, t := range evalTimes {
		b := r.store.Bucket(t)
		if _, hit := resolved[b]; hit {
			continue
		}
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		missing = append(missing, b)
	}
	if len(missing) == 0 {
		return resolved
	}

	keys := make([]string, len(missing))
	keyBucket := make(map[string]time.Time, len(missing))
	for i, b := range missing {
		keys[i] = r.store.Key(asset, b)
		keyBucket[keys[i]] = b
	}

	owned, flights := r.co.claim(keys)
	if len(owned) > 0 {
		ownedBuckets := make([]time.Time, len(owned))
		for i, key := range owned {
			ownedBuckets[i] = keyBucket[key]
		}
		go r.fetchOwned(ctx, asset, owned, ownedBuckets)
	}

	// waiters piggyback on whoever owns each in-flight fetch
	if r.metrics != nil {
		for i := 0; i < len(keys)-len(owned); i++ {
			r.metrics.RecordCoalescedWait(asset)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, r.passDeadline)
	defer cancel()

	for key, f := range flights {
		select {
		case <-f.done:
			if f.ok {
				resolved[keyBucket[key]] = f.price
			}
		case <-waitCtx.Done():
			return resolved
		}
	}
	return resolved
}

// fetchOwned resolves owned buckets upstream and publishes every outcome.
// It runs detached from the caller's context so a departed caller never
// strands the other waiters; the pass deadline still bounds it.
func (r *Reconciler) fetchOwned(ctx context.Context, asset string, keys []string, buckets []time.Time) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.passDeadline)
	defer cancel()

	var prices map[time.Time]float64

	// every owned key must be completed no matter how the fetch ends, or
	// later passes attach to a flight nobody will ever finish
	defer func() {
		if rec := recover(); rec != nil && r.log != nil {
			r.log.Error("upstream fetch panicked",
				logger.String("asset", asset),
				logger.String("panic", fmt.Sprint(rec)),
			)
		}
		for i, key := range keys {
			price, ok := prices[buckets[i]]
			r.co.complete(key, price, ok)
		}
	}()

	var err error
	prices, err = r.fetcher.FetchBatch(fetchCtx, asset, buckets)
	if err != nil && r.log != nil {
		r.log.Warn("upstream fetch failed",
			logger.String("asset", asset),
			logger.Int("buckets", len(buckets)),
			logger.Error(err),
		)
	}

	// persist before releasing waiters so a pass starting right after
	// completion sees the store populated
	var toStore []models.ActualPrice
	for bucket, price := range prices {
		toStore = append(toStore, models.ActualPrice{
			Asset:  asset,
			Bucket: bucket,
			Price:  price,
			Source: "chain",
		})
	}
	if len(toStore) > 0 {
		r.store.PutBatch(fetchCtx, toStore)
	}
}

// prepare sorts records by prediction time, keeps the first record per
// evaluation bucket, and keeps only the most recent maxRows. Several
// forecasts sharing one actual-price bucket would otherwise double-count
// the same actual in the metrics.
func prepare(records []models.PredictionRecord, maxRows int, bucketOf func(models.PredictionRecord) time.Time) []models.PredictionRecord {
	out := make([]models.PredictionRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PredictionTime.Before(out[j].PredictionTime)
	})

	deduped := out[:0]
	seen := make(map[time.Time]struct{}, len(out))
	for _, rec := range out {
		b := bucketOf(rec)
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		deduped = append(deduped, rec)
	}

	if maxRows > 0 && len(deduped) > maxRows {
		deduped = deduped[len(deduped)-maxRows:]
	}
	return deduped
}
