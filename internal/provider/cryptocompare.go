package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	xhttp "predeval/pkg/http"
)

const (
	cryptoCompareDefaultBaseURL = "https://min-api.cryptocompare.com"
	cryptoCompareMaxLimit       = 2000
)

// CryptoCompare fetches historical minute prices from CryptoCompare.
type CryptoCompare struct {
	baseURL string
	apiKey  string
	client  *xhttp.Client
}

// NewCryptoCompare creates a CryptoCompare provider.
func NewCryptoCompare(baseURL, apiKey string, client *xhttp.Client) *CryptoCompare {
	if baseURL == "" {
		baseURL = cryptoCompareDefaultBaseURL
	}
	return &CryptoCompare{baseURL: baseURL, apiKey: apiKey, client: client}
}

func (p *CryptoCompare) Name() string { return "cryptocompare" }

type ccHistoResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
	Data     struct {
		Data []struct {
			Time  int64   `json:"time"`
			Close float64 `json:"close"`
		} `json:"Data"`
	} `json:"Data"`
}

func (p *CryptoCompare) FetchRange(ctx context.Context, asset string, from, to time.Time) ([]PricePoint, error) {
	fsym := strings.ToUpper(asset)

	limit := int(to.Sub(from).Minutes()) + 1
	if limit < 1 {
		limit = 1
	}
	if limit > cryptoCompareMaxLimit {
		limit = cryptoCompareMaxLimit
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Apikey " + p.apiKey
	}

	var resp ccHistoResponse
	err := p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     fmt.Sprintf("%s/data/v2/histominute", p.baseURL),
		Headers: headers,
		QueryParams: map[string][]string{
			"fsym":  {fsym},
			"tsym":  {"USD"},
			"limit": {strconv.Itoa(limit)},
			"toTs":  {strconv.FormatInt(to.Unix(), 10)},
		},
	}, &resp)
	if err != nil {
		var se *xhttp.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
			return nil, ErrThrottled
		}
		return nil, fmt.Errorf("cryptocompare: %w", err)
	}

	if resp.Response == "Error" {
		if strings.Contains(strings.ToLower(resp.Message), "rate limit") {
			return nil, ErrThrottled
		}
		return nil, fmt.Errorf("cryptocompare: %s", resp.Message)
	}

	points := make([]PricePoint, 0, len(resp.Data.Data))
	for _, d := range resp.Data.Data {
		if d.Close <= 0 {
			continue
		}
		points = append(points, PricePoint{
			Time:  time.Unix(d.Time, 0).UTC(),
			Price: d.Close,
		})
	}
	return points, nil
}
