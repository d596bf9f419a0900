package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	xhttp "predeval/pkg/http"
)

const binanceDefaultBaseURL = "https://api.binance.com"

// binanceSymbols maps canonical asset names to Binance spot symbols.
var binanceSymbols = map[string]string{
	"btc": "BTCUSDT",
	"eth": "ETHUSDT",
	"tao": "TAOUSDT",
}

// Binance fetches historical prices from the Binance klines API.
type Binance struct {
	baseURL string
	client  *xhttp.Client
}

// NewBinance creates a Binance provider.
func NewBinance(baseURL string, client *xhttp.Client) *Binance {
	if baseURL == "" {
		baseURL = binanceDefaultBaseURL
	}
	return &Binance{baseURL: baseURL, client: client}
}

func (p *Binance) Name() string { return "binance" }

func (p *Binance) FetchRange(ctx context.Context, asset string, from, to time.Time) ([]PricePoint, error) {
	symbol, ok := binanceSymbols[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetUnsupported, asset)
	}

	// kline rows are mixed-type arrays, [0]=open time ms, [4]=close price string
	var rows [][]json.RawMessage
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    fmt.Sprintf("%s/api/v3/klines", p.baseURL),
		QueryParams: map[string][]string{
			"symbol":    {symbol},
			"interval":  {"1m"},
			"startTime": {strconv.FormatInt(from.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(to.UnixMilli(), 10)},
			"limit":     {"1000"},
		},
	}, &rows)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusTeapot) {
			// Binance uses 418 for repeat offenders
			return nil, ErrThrottled
		}
		return nil, fmt.Errorf("binance: %w", err)
	}

	points := make([]PricePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		var openMs int64
		if err := json.Unmarshal(row[0], &openMs); err != nil {
			continue
		}
		var closeStr string
		if err := json.Unmarshal(row[4], &closeStr); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(closeStr, 64)
		if err != nil {
			continue
		}
		points = append(points, PricePoint{
			Time:  time.UnixMilli(openMs).UTC(),
			Price: price,
		})
	}
	return points, nil
}
