package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	xhttp "predeval/pkg/http"
)

const coinGeckoDefaultBaseURL = "https://api.coingecko.com"

// coinGeckoIDs maps canonical asset names to CoinGecko coin ids.
var coinGeckoIDs = map[string]string{
	"btc": "bitcoin",
	"eth": "ethereum",
	"tao": "bittensor",
}

// CoinGecko fetches historical prices from the CoinGecko market chart API.
type CoinGecko struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

// NewCoinGecko creates a CoinGecko provider.
func NewCoinGecko(baseURL, apiKey string, client *xhttp.Client) *CoinGecko {
	if baseURL == "" {
		baseURL = coinGeckoDefaultBaseURL
	}
	return &CoinGecko{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (p *CoinGecko) Name() string { return "coingecko" }

type cgMarketChart struct {
	Prices [][2]float64 `json:"prices"`
}

func (p *CoinGecko) FetchRange(ctx context.Context, asset string, from, to time.Time) ([]PricePoint, error) {
	id, ok := coinGeckoIDs[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetUnsupported, asset)
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["x-cg-demo-api-key"] = p.apiKey
	}

	var chart cgMarketChart
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     fmt.Sprintf("%s/api/v3/coins/%s/market_chart/range", p.baseURL, id),
		Headers: headers,
		QueryParams: map[string][]string{
			"vs_currency": {"usd"},
			"from":        {strconv.FormatInt(from.Unix(), 10)},
			"to":          {strconv.FormatInt(to.Unix(), 10)},
		},
	}, &chart)
	if err != nil {
		return nil, p.classify(err)
	}

	points := make([]PricePoint, 0, len(chart.Prices))
	for _, pair := range chart.Prices {
		points = append(points, PricePoint{
			Time:  time.UnixMilli(int64(pair[0])).UTC(),
			Price: pair[1],
		})
	}
	return points, nil
}

func (p *CoinGecko) classify(err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
		return ErrThrottled
	}
	return fmt.Errorf("coingecko: %w", err)
}
