package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"predeval/internal/domain/models"
	"predeval/internal/pricestore"
	"predeval/internal/reconcile"
	"predeval/pkg/cache"
	"predeval/pkg/logger"
	"predeval/pkg/metrics"

	"github.com/labstack/echo/v4"
)

var predTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type stubSource struct {
	miners  []string
	assets  []string
	records map[string][]models.PredictionRecord // by asset
}

func (s *stubSource) Miners(context.Context) ([]string, error) { return s.miners, nil }
func (s *stubSource) Assets(context.Context, string) ([]string, error) {
	return s.assets, nil
}
func (s *stubSource) ListPredictions(_ context.Context, _, asset string) ([]models.PredictionRecord, error) {
	return s.records[asset], nil
}

type stubFetcher struct {
	prices map[time.Time]float64
}

func (f *stubFetcher) FetchBatch(_ context.Context, _ string, buckets []time.Time) (map[time.Time]float64, error) {
	out := make(map[time.Time]float64)
	for _, b := range buckets {
		if p, ok := f.prices[b]; ok {
			out[b] = p
		}
	}
	return out, nil
}

func testHandler(t *testing.T) *Handler {
	t.Helper()

	src := &stubSource{
		miners: []string{"miner1"},
		assets: []string{"btc"},
		records: map[string][]models.PredictionRecord{
			"btc": {
				{Asset: "btc", MinerID: "miner1", PredictionTime: predTime, Predicted: 100},
				{Asset: "btc", MinerID: "miner1", PredictionTime: predTime.Add(10 * time.Minute), Predicted: 110},
			},
		},
	}
	fetcher := &stubFetcher{prices: map[time.Time]float64{
		predTime.Add(time.Hour):                    100,
		predTime.Add(time.Hour + 10*time.Minute):   100,
	}}

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	store := pricestore.New(mc, 5*time.Minute, nil, metrics.Nop{})
	rec := reconcile.New(src, store, fetcher, time.Hour, 5*time.Second, nil, metrics.Nop{},
		reconcile.WithClock(func() time.Time { return predTime.Add(6 * time.Hour) }))

	log, err := logger.New(&logger.Config{Level: "error", Output: "stdout"})
	if err != nil {
		t.Fatal(err)
	}
	return NewHandler(log, src, rec, nil)
}

func doRequest(t *testing.T, h *Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rr := httptest.NewRecorder()
	e.ServeHTTP(rr, req)
	return rr
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rr.Body.String())
	}
	return env
}

func TestHealth(t *testing.T) {
	rr := doRequest(t, testHandler(t), http.MethodGet, "/api/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	var data struct {
		Status string   `json:"status"`
		Miners []string `json:"miners"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Status != "healthy" || len(data.Miners) != 1 {
		t.Fatalf("unexpected health payload %+v", data)
	}
}

func TestMinersEndpoint(t *testing.T) {
	rr := doRequest(t, testHandler(t), http.MethodGet, "/api/miners", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "miner1") {
		t.Fatalf("miner missing from %s", rr.Body.String())
	}
}

func TestPredictionsLimit(t *testing.T) {
	rr := doRequest(t, testHandler(t), http.MethodGet, "/api/miners/miner1/predictions?limit=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	var data struct {
		Predictions []struct {
			Timestamp time.Time `json:"timestamp"`
		} `json:"predictions"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Predictions) != 1 {
		t.Fatalf("expected 1 row, got %d", len(data.Predictions))
	}
	// most recent first
	if !data.Predictions[0].Timestamp.Equal(predTime.Add(10 * time.Minute)) {
		t.Fatalf("expected newest row, got %v", data.Predictions[0].Timestamp)
	}
}

func TestAssetDataWireContract(t *testing.T) {
	rr := doRequest(t, testHandler(t), http.MethodGet, "/api/miners/miner1/asset/btc", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	var data struct {
		MinerName string `json:"miner_name"`
		Asset     string `json:"asset"`
		Count     int    `json:"count"`
		Data      []map[string]json.RawMessage `json:"data"`
		Metrics   map[string]json.RawMessage   `json:"metrics"`
		Stats     map[string]int               `json:"price_fetch_stats"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Asset != "btc" || data.Count != 2 {
		t.Fatalf("unexpected payload asset=%s count=%d", data.Asset, data.Count)
	}
	for _, field := range []string{"timestamp", "prediction_time", "evaluation_time", "prediction", "interval_lower", "interval_upper", "actual_price", "has_actual"} {
		if _, ok := data.Data[0][field]; !ok {
			t.Fatalf("wire field %q missing in %v", field, data.Data[0])
		}
	}
	for _, field := range []string{"mape", "mae", "rmse", "bias", "bias_pct", "n_predictions"} {
		if _, ok := data.Metrics[field]; !ok {
			t.Fatalf("metrics field %q missing in %v", field, data.Metrics)
		}
	}
	if data.Stats["total_evaluable"] != 2 || data.Stats["fetched"] != 2 {
		t.Fatalf("unexpected stats %v", data.Stats)
	}
}

func TestAssetDataTimeWindow(t *testing.T) {
	target := "/api/miners/miner1/asset/btc?start_time=" + predTime.Add(5*time.Minute).Format(time.RFC3339)
	rr := doRequest(t, testHandler(t), http.MethodGet, target, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	var data struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Count != 1 {
		t.Fatalf("expected window to keep 1 point, got %d", data.Count)
	}
}

func TestUnknownMinerIs404(t *testing.T) {
	rr := doRequest(t, testHandler(t), http.MethodGet, "/api/miners/ghost/asset/btc", "")
	env := decodeEnvelope(t, rr)
	if env.Status != http.StatusNotFound {
		t.Fatalf("expected 404 envelope, got %d (%s)", env.Status, rr.Body.String())
	}
}

func TestFetchDataWarmsAllMiners(t *testing.T) {
	rr := doRequest(t, testHandler(t), http.MethodPost, "/api/fetch-data", `{}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	var data struct {
		Results []models.FetchDataResult `json:"results"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if len(data.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(data.Results))
	}
	r := data.Results[0]
	if !r.Success || r.MinerName != "miner1" || r.PricesFetched != 2 {
		t.Fatalf("unexpected result %+v", r)
	}
}
