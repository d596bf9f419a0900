package models

// MetricsBundle holds accuracy statistics over aligned points with actuals.
// A nil bundle means there was not enough data to evaluate anything.
// JSON names match the dashboard wire contract.
type MetricsBundle struct {
	N       int     `json:"n_predictions"`
	MAPE    float64 `json:"mape"`
	MAE     float64 `json:"mae"`
	RMSE    float64 `json:"rmse"`
	Bias    float64 `json:"bias"`
	BiasPct float64 `json:"bias_pct"`

	// Interval metrics are present only when the evaluated subset carried
	// both interval bounds.
	Coverage            *float64 `json:"coverage,omitempty"`
	AvgIntervalWidth    *float64 `json:"avg_interval_width,omitempty"`
	AvgIntervalWidthPct *float64 `json:"avg_interval_width_pct,omitempty"`
}

// FetchStats summarizes actual-price resolution for one reconciliation pass.
type FetchStats struct {
	TotalEvaluable int `json:"total_evaluable"`
	Fetched        int `json:"fetched"`
	Failed         int `json:"failed"`
	Future         int `json:"future"`
}
