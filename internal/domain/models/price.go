package models

import "time"

// ActualPrice is the ground-truth price for one (asset, bucket) key.
// Once written it is treated as final truth for that bucket.
type ActualPrice struct {
	Asset  string    `json:"asset"`
	Bucket time.Time `json:"bucket"`
	Price  float64   `json:"price"`
	Source string    `json:"source"`
}

// AlignedPoint pairs a forecast with the realized price at its evaluation
// time. The JSON field names are a wire contract with the dashboard
// frontend and must not change.
type AlignedPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	PredictionTime time.Time `json:"prediction_time"`
	EvaluationTime time.Time `json:"evaluation_time"`
	Prediction     float64   `json:"prediction"`
	IntervalLower  *float64  `json:"interval_lower"`
	IntervalUpper  *float64  `json:"interval_upper"`
	ActualPrice    *float64  `json:"actual_price"`
	HasActual      bool      `json:"has_actual"`
}
