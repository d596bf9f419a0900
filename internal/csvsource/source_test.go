package csvsource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"predeval/internal/domain/repository"
)

const sampleCSV = `timestamp,validator_hotkey,btc_prediction,btc_raw_prediction,btc_interval_lower,btc_interval_upper,tao_bittensor_prediction
2024-06-01T12:00:00Z,hk1,64000.5,63990.1,63000,65000,295.5
2024-06-01T12:05:00Z,hk1,64100.0,,63100,65100,296.0
bad-timestamp,hk1,64200.0,,,,297.0
2024-06-01T12:10:00Z,hk1,,,,,298.0
`

func writeMiner(t *testing.T, dir, miner, filename, body string) {
	t.Helper()
	minerDir := filepath.Join(dir, miner)
	if err := os.MkdirAll(minerDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(minerDir, filename), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestMinersDiscovery(t *testing.T) {
	dir := t.TempDir()
	writeMiner(t, dir, "miner1", "my_predictions_history.csv", sampleCSV)
	writeMiner(t, dir, "miner2", "miner_predictions_history.csv", sampleCSV)
	// directory without a history file is not a miner
	if err := os.MkdirAll(filepath.Join(dir, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	miners, err := New(dir, nil).Miners(context.Background())
	if err != nil {
		t.Fatalf("miners: %v", err)
	}
	if len(miners) != 2 || miners[0] != "miner1" || miners[1] != "miner2" {
		t.Fatalf("unexpected miners %v", miners)
	}
}

func TestAssetsDetection(t *testing.T) {
	dir := t.TempDir()
	writeMiner(t, dir, "miner1", "my_predictions_history.csv", sampleCSV)

	assets, err := New(dir, nil).Assets(context.Background(), "miner1")
	if err != nil {
		t.Fatalf("assets: %v", err)
	}
	// tao_bittensor normalizes to tao; btc_raw_prediction is not an asset
	if len(assets) != 2 || assets[0] != "btc" || assets[1] != "tao" {
		t.Fatalf("unexpected assets %v", assets)
	}
}

func TestListPredictions(t *testing.T) {
	dir := t.TempDir()
	writeMiner(t, dir, "miner1", "my_predictions_history.csv", sampleCSV)

	records, err := New(dir, nil).ListPredictions(context.Background(), "miner1", "btc")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// bad timestamp row and empty prediction row are skipped
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Predicted != 64000.5 {
		t.Fatalf("unexpected first record %+v", records[0])
	}
	if records[0].IntervalLower == nil || *records[0].IntervalLower != 63000 {
		t.Fatalf("interval lower not parsed: %+v", records[0])
	}
	if records[0].MinerID != "miner1" || records[0].Asset != "btc" {
		t.Fatalf("identity fields wrong: %+v", records[0])
	}
}

func TestListPredictionsAssetAlias(t *testing.T) {
	dir := t.TempDir()
	writeMiner(t, dir, "miner1", "my_predictions_history.csv", sampleCSV)

	records, err := New(dir, nil).ListPredictions(context.Background(), "miner1", "tao")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 tao records, got %d", len(records))
	}
	if records[0].Predicted != 295.5 {
		t.Fatalf("unexpected first tao record %+v", records[0])
	}
	if records[0].IntervalLower != nil {
		t.Fatalf("tao has no interval columns, got %+v", records[0])
	}
}

func TestFallbackFileName(t *testing.T) {
	dir := t.TempDir()
	writeMiner(t, dir, "miner1", "miner_predictions_history.csv", sampleCSV)

	records, err := New(dir, nil).ListPredictions(context.Background(), "miner1", "btc")
	if err != nil {
		t.Fatalf("list via fallback name: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestMissingFileIsSourceUnavailable(t *testing.T) {
	dir := t.TempDir()

	_, err := New(dir, nil).ListPredictions(context.Background(), "ghost", "btc")
	if !errors.Is(err, repository.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestUnknownAssetYieldsNoRecords(t *testing.T) {
	dir := t.TempDir()
	writeMiner(t, dir, "miner1", "my_predictions_history.csv", sampleCSV)

	records, err := New(dir, nil).ListPredictions(context.Background(), "miner1", "doge")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}
