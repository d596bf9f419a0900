package api

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"predeval/internal/domain/models"
	"predeval/internal/domain/repository"
	"predeval/internal/evaluation"
	"predeval/internal/reconcile"
	xhttp "predeval/pkg/http"
	xlogger "predeval/pkg/logger"

	"github.com/labstack/echo/v4"
)

const fetchConcurrency = 4

// Handler serves the dashboard API over the prediction source and the
// reconciler.
type Handler struct {
	logger     *xlogger.Logger
	source     repository.PredictionSource
	reconciler *reconcile.Reconciler
	hub        *Hub
}

func NewHandler(logger *xlogger.Logger, source repository.PredictionSource, r *reconcile.Reconciler, hub *Hub) *Handler {
	return &Handler{logger: logger, source: source, reconciler: r, hub: hub}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/miners", h.Miners)
	g.GET("/miners/:miner/predictions", h.Predictions)
	g.GET("/miners/:miner/asset/:asset", h.AssetData)
	g.POST("/fetch-data", h.FetchData)

	if h.hub != nil {
		e.GET("/ws", h.hub.Handle)
	}
}

func (h *Handler) Health(c echo.Context) error {
	miners, err := h.source.Miners(c.Request().Context())
	if err != nil {
		miners = nil
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"status": "healthy",
		"miners": miners,
	})
}

func (h *Handler) Miners(c echo.Context) error {
	miners, err := h.source.Miners(c.Request().Context())
	if err != nil {
		h.logger.Error("list miners", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("prediction source unavailable"))
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"miners": miners})
}

// assetForecast is one asset's forecast within a prediction row.
type assetForecast struct {
	Prediction    float64  `json:"prediction"`
	IntervalLower *float64 `json:"interval_lower,omitempty"`
	IntervalUpper *float64 `json:"interval_upper,omitempty"`
}

// predictionRow groups all asset forecasts sharing one timestamp.
type predictionRow struct {
	Timestamp time.Time                `json:"timestamp"`
	Assets    map[string]assetForecast `json:"assets"`
}

func (h *Handler) Predictions(c echo.Context) error {
	miner := c.Param("miner")
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	if err := h.requireMiner(c, miner); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	assets, err := h.source.Assets(ctx, miner)
	if err != nil {
		return h.sourceError(c, err)
	}

	// merge per-asset records by timestamp; the first forecast per
	// timestamp wins, matching the evaluation path
	byTime := make(map[time.Time]*predictionRow)
	for _, asset := range assets {
		records, err := h.source.ListPredictions(ctx, miner, asset)
		if err != nil {
			return h.sourceError(c, err)
		}
		for _, rec := range records {
			row, ok := byTime[rec.PredictionTime]
			if !ok {
				row = &predictionRow{
					Timestamp: rec.PredictionTime,
					Assets:    make(map[string]assetForecast),
				}
				byTime[rec.PredictionTime] = row
			}
			if _, dup := row.Assets[asset]; dup {
				continue
			}
			row.Assets[asset] = assetForecast{
				Prediction:    rec.Predicted,
				IntervalLower: rec.IntervalLower,
				IntervalUpper: rec.IntervalUpper,
			}
		}
	}

	rows := make([]predictionRow, 0, len(byTime))
	for _, row := range byTime {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.After(rows[j].Timestamp) })
	if len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}

	return xhttp.SuccessResponse(c, map[string]interface{}{"predictions": rows})
}

func (h *Handler) AssetData(c echo.Context) error {
	miner := c.Param("miner")
	asset := models.NormalizeAsset(c.Param("asset"))
	req := &models.AssetDataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.requireMiner(c, miner); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	points, stats, err := h.reconciler.Reconcile(c.Request().Context(), miner, asset)
	if err != nil {
		return h.sourceError(c, err)
	}

	start, hasStart := xhttp.ParseTime(req.StartTime)
	end, hasEnd := xhttp.ParseTime(req.EndTime)
	if hasStart || hasEnd {
		filtered := points[:0]
		for _, p := range points {
			if hasStart && p.PredictionTime.Before(start) {
				continue
			}
			if hasEnd && p.PredictionTime.After(end) {
				continue
			}
			filtered = append(filtered, p)
		}
		points = filtered
	} else if len(points) > req.Limit {
		// no explicit window: most recent rows only
		points = points[len(points)-req.Limit:]
	}

	return xhttp.SuccessResponse(c, models.AssetDataResponse{
		MinerName: miner,
		Asset:     asset,
		Data:      points,
		Count:     len(points),
		Metrics:   evaluation.Compute(points),
		Stats:     stats,
	})
}

// FetchData runs a warm pass over all miners (or one, when the body names
// it): every evaluable bucket gets resolved and cached so subsequent asset
// queries are cheap. Bucket fetches are shared across miners through the
// reconciler's coalescing.
func (h *Handler) FetchData(c echo.Context) error {
	req := &models.FetchDataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	var miners []string
	if req.MinerName != "" {
		if err := h.requireMiner(c, req.MinerName); err != nil {
			return xhttp.AppErrorResponse(c, err)
		}
		miners = []string{req.MinerName}
	} else {
		var err error
		miners, err = h.source.Miners(ctx)
		if err != nil {
			return h.sourceError(c, err)
		}
	}

	results := make([]models.FetchDataResult, len(miners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	for i, miner := range miners {
		i, miner := i, miner
		g.Go(func() error {
			results[i] = h.warmMiner(gctx, miner)
			return nil
		})
	}
	_ = g.Wait()

	return xhttp.SuccessResponse(c, map[string]interface{}{"results": results})
}

// warmMiner reconciles every asset a miner forecasts and aggregates the
// per-asset fetch stats.
func (h *Handler) warmMiner(ctx context.Context, miner string) models.FetchDataResult {
	result := models.FetchDataResult{MinerName: miner}

	assets, err := h.source.Assets(ctx, miner)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	for _, asset := range assets {
		_, stats, err := h.reconciler.Reconcile(ctx, miner, asset)
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Stats.TotalEvaluable += stats.TotalEvaluable
		result.Stats.Fetched += stats.Fetched
		result.Stats.Failed += stats.Failed
		result.Stats.Future += stats.Future
	}

	result.Success = true
	result.PricesFetched = result.Stats.Fetched
	result.PricesFailed = result.Stats.Failed
	result.FuturePoints = result.Stats.Future
	return result
}

func (h *Handler) requireMiner(c echo.Context, miner string) error {
	miners, err := h.source.Miners(c.Request().Context())
	if err != nil {
		return xhttp.InternalError("prediction source unavailable").WithError(err)
	}
	for _, m := range miners {
		if m == miner {
			return nil
		}
	}
	return xhttp.NotFoundErrorf("miner %s not found", miner)
}

func (h *Handler) sourceError(c echo.Context, err error) error {
	h.logger.Error("request failed", xlogger.Error(err))
	if errors.Is(err, repository.ErrSourceUnavailable) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError("prediction history not found").WithError(err))
	}
	return xhttp.AppErrorResponse(c, xhttp.InternalError("reconciliation failed").WithError(err))
}
