package repository

import (
	"context"
	"errors"

	"predeval/internal/domain/models"
)

// ErrSourceUnavailable means the prediction source cannot be read at all.
// It is fatal for the single request; there is nothing to reconcile.
var ErrSourceUnavailable = errors.New("prediction source unavailable")

// PredictionSource lists forecast records for a miner, oldest first.
type PredictionSource interface {
	Miners(ctx context.Context) ([]string, error)
	Assets(ctx context.Context, miner string) ([]string, error)
	ListPredictions(ctx context.Context, miner, asset string) ([]models.PredictionRecord, error)
}

// Metrics records operational counters for the reconciliation core.
type Metrics interface {
	RecordCacheHit(asset string)
	RecordCacheMiss(asset string)
	RecordProviderCall(provider, outcome string)
	RecordCoalescedWait(asset string)
	RecordReconcileDuration(asset string, seconds float64)
	RecordStreamState(state string)
}
