package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
environment: development
server:
  port: 8000
source:
  data_dir: ./data
  max_rows: 500
cache:
  backend: memory
  bucket_width: 5m
providers:
  order: [coingecko, binance, cryptocompare]
  call_timeout: 5s
reconcile:
  horizon: 1h
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	c, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Source.DataDir != "./data" {
		t.Fatalf("unexpected data_dir %q", c.Source.DataDir)
	}
	if c.Cache.BucketWidth != 5*time.Minute {
		t.Fatalf("unexpected bucket_width %v", c.Cache.BucketWidth)
	}
	if c.Providers.CallTimeout != 5*time.Second {
		t.Fatalf("unexpected call_timeout %v", c.Providers.CallTimeout)
	}
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, `
environment: development
source:
  data_dir: ./data
providers:
  order: [binance]
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Cache.BucketWidth != 5*time.Minute {
		t.Fatalf("expected default bucket_width, got %v", c.Cache.BucketWidth)
	}
	if c.Reconcile.Horizon != time.Hour {
		t.Fatalf("expected default horizon, got %v", c.Reconcile.Horizon)
	}
	if c.Server.Port != 8000 {
		t.Fatalf("expected default port, got %d", c.Server.Port)
	}
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: development
source:
  data_dir: ./data
providers:
  order: [kraken]
`))
	if err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestValidateRejectsMissingDataDir(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: development
providers:
  order: [binance]
`))
	if err == nil {
		t.Fatalf("expected error for missing data_dir")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/other")
	t.Setenv("PROVIDER_ORDER", "binance,coingecko")

	c, err := LoadWithEnv(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Source.DataDir != "/tmp/other" {
		t.Fatalf("env override not applied: %q", c.Source.DataDir)
	}
	if len(c.Providers.Order) != 2 || c.Providers.Order[0] != "binance" {
		t.Fatalf("provider order override not applied: %v", c.Providers.Order)
	}
}
