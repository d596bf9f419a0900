package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xhttp "predeval/pkg/http"
)

func TestCoinGeckoFetchRange(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/coins/bitcoin/market_chart/range" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("vs_currency") != "usd" {
			t.Errorf("vs_currency=%s", r.URL.Query().Get("vs_currency"))
		}
		if got := r.Header.Get("x-cg-demo-api-key"); got != "k123" {
			t.Errorf("api key header=%q", got)
		}
		fmt.Fprintf(w, `{"prices":[[%d,50000.5],[%d,50100.0]]}`,
			at.UnixMilli(), at.Add(5*time.Minute).UnixMilli())
	}))
	defer srv.Close()

	p := NewCoinGecko(srv.URL, "k123", xhttp.NewClient())
	points, err := p.FetchRange(context.Background(), "btc", at, at.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("points=%d", len(points))
	}
	if !points[0].Time.Equal(at) || points[0].Price != 50000.5 {
		t.Fatalf("first point %+v", points[0])
	}
}

func TestCoinGeckoThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewCoinGecko(srv.URL, "", xhttp.NewClient())
	_, err := p.FetchRange(context.Background(), "btc", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}

func TestCoinGeckoUnsupportedAsset(t *testing.T) {
	p := NewCoinGecko("http://unused", "", xhttp.NewClient())
	_, err := p.FetchRange(context.Background(), "doge", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrAssetUnsupported) {
		t.Fatalf("expected ErrAssetUnsupported, got %v", err)
	}
}

func TestBinanceFetchRange(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "ETHUSDT" {
			t.Errorf("symbol=%s", r.URL.Query().Get("symbol"))
		}
		if r.URL.Query().Get("interval") != "1m" {
			t.Errorf("interval=%s", r.URL.Query().Get("interval"))
		}
		// kline rows carry mixed types; only open time and close matter
		fmt.Fprintf(w, `[[%d,"3000.0","3010.0","2990.0","3005.25","12.5"]]`,
			at.UnixMilli())
	}))
	defer srv.Close()

	p := NewBinance(srv.URL, xhttp.NewClient())
	points, err := p.FetchRange(context.Background(), "eth", at, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("points=%d", len(points))
	}
	if points[0].Price != 3005.25 {
		t.Fatalf("price=%v", points[0].Price)
	}
}

func TestBinanceTeapotIsThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	p := NewBinance(srv.URL, xhttp.NewClient())
	_, err := p.FetchRange(context.Background(), "btc", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}

func TestCryptoCompareFetchRange(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fsym") != "BTC" {
			t.Errorf("fsym=%s", r.URL.Query().Get("fsym"))
		}
		fmt.Fprintf(w, `{"Response":"Success","Data":{"Data":[
			{"time":%d,"close":50000},
			{"time":%d,"close":0}
		]}}`, at.Unix(), at.Add(time.Minute).Unix())
	}))
	defer srv.Close()

	p := NewCryptoCompare(srv.URL, "", xhttp.NewClient())
	points, err := p.FetchRange(context.Background(), "btc", at, at.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// zero closes are dropped
	if len(points) != 1 {
		t.Fatalf("points=%d", len(points))
	}
	if !points[0].Time.Equal(at) || points[0].Price != 50000 {
		t.Fatalf("point %+v", points[0])
	}
}

func TestCryptoCompareBodyRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Response":"Error","Message":"You are over your rate limit"}`)
	}))
	defer srv.Close()

	p := NewCryptoCompare(srv.URL, "", xhttp.NewClient())
	_, err := p.FetchRange(context.Background(), "btc", time.Now().Add(-time.Hour), time.Now())
	if !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}
