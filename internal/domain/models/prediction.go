package models

import (
	"strings"
	"time"
)

// PredictionRecord is one forecast row from a miner's history file.
// Records are supplied by the prediction source and never mutated here.
type PredictionRecord struct {
	Asset          string
	MinerID        string
	PredictionTime time.Time
	Predicted      float64
	IntervalLower  *float64
	IntervalUpper  *float64
}

// assetAliases maps source-side asset spellings to canonical names.
var assetAliases = map[string]string{
	"tao_bittensor": "tao",
	"tao":           "tao",
	"btc":           "btc",
	"eth":           "eth",
}

// NormalizeAsset converts a raw asset name to its canonical lower-case form.
func NormalizeAsset(s string) string {
	k := strings.ToLower(strings.TrimSpace(s))
	if v, ok := assetAliases[k]; ok {
		return v
	}
	return k
}
