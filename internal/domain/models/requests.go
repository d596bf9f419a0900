package models

// Requests for dashboard HTTP endpoints. Defined in domain for consistency and reuse.

type PredictionsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type AssetDataRequest struct {
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
	StartTime string `query:"start_time" json:"start_time"`
	EndTime   string `query:"end_time" json:"end_time"`
}

type FetchDataRequest struct {
	MinerName string `json:"miner_name"`
}

// AssetDataResponse is the payload of the per-asset endpoint.
type AssetDataResponse struct {
	MinerName string         `json:"miner_name"`
	Asset     string         `json:"asset"`
	Data      []AlignedPoint `json:"data"`
	Count     int            `json:"count"`
	Metrics   *MetricsBundle `json:"metrics"`
	Stats     FetchStats     `json:"price_fetch_stats"`
}

// FetchDataResult reports one miner's warm-pass outcome.
type FetchDataResult struct {
	Success       bool       `json:"success"`
	MinerName     string     `json:"miner_name"`
	Error         string     `json:"error,omitempty"`
	PricesFetched int        `json:"prices_fetched"`
	PricesFailed  int        `json:"prices_failed"`
	FuturePoints  int        `json:"future_predictions"`
	Stats         FetchStats `json:"price_fetch_stats"`
}
