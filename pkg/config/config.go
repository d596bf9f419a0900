package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Source struct {
		DataDir      string        `yaml:"data_dir"`
		MaxRows      int           `yaml:"max_rows"`
		PollInterval time.Duration `yaml:"poll_interval"`
		WatchEnabled bool          `yaml:"watch_enabled"`
	} `yaml:"source"`
	Cache struct {
		Backend       string        `yaml:"backend"` // none, memory, redis, layered
		BucketWidth   time.Duration `yaml:"bucket_width"`
		MemoryMaxSize int           `yaml:"memory_max_size"`
		Redis         struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Providers struct {
		Order       []string      `yaml:"order"`
		CallTimeout time.Duration `yaml:"call_timeout"`
		MaxRangeGap time.Duration `yaml:"max_range_gap"`
		CoinGecko   struct {
			BaseURL           string  `yaml:"base_url"`
			APIKey            string  `yaml:"api_key"`
			RequestsPerMinute float64 `yaml:"requests_per_minute"`
			Burst             int     `yaml:"burst"`
		} `yaml:"coingecko"`
		Binance struct {
			BaseURL           string  `yaml:"base_url"`
			RequestsPerMinute float64 `yaml:"requests_per_minute"`
			Burst             int     `yaml:"burst"`
		} `yaml:"binance"`
		CryptoCompare struct {
			BaseURL           string  `yaml:"base_url"`
			APIKey            string  `yaml:"api_key"`
			RequestsPerMinute float64 `yaml:"requests_per_minute"`
			Burst             int     `yaml:"burst"`
		} `yaml:"cryptocompare"`
	} `yaml:"providers"`
	Reconcile struct {
		Horizon      time.Duration `yaml:"horizon"`
		PassDeadline time.Duration `yaml:"pass_deadline"`
	} `yaml:"reconcile"`
	Stream struct {
		Enabled     bool          `yaml:"enabled"`
		URL         string        `yaml:"url"`
		Symbols     []string      `yaml:"symbols"`
		MaxBackoff  time.Duration `yaml:"max_backoff"`
		PingTimeout time.Duration `yaml:"ping_timeout"`
	} `yaml:"stream"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Source.DataDir = v
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		c.Providers.CoinGecko.APIKey = v
	}
	if v := os.Getenv("CRYPTOCOMPARE_API_KEY"); v != "" {
		c.Providers.CryptoCompare.APIKey = v
	}
	if v := os.Getenv("PROVIDER_ORDER"); v != "" {
		c.Providers.Order = strings.Split(v, ",")
	}
	if v := os.Getenv("STREAM_URL"); v != "" {
		c.Stream.URL = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Source.MaxRows == 0 {
		c.Source.MaxRows = 1000
	}
	if c.Source.PollInterval == 0 {
		c.Source.PollInterval = time.Minute
	}
	if c.Cache.BucketWidth == 0 {
		c.Cache.BucketWidth = 5 * time.Minute
	}
	if c.Providers.CallTimeout == 0 {
		c.Providers.CallTimeout = 10 * time.Second
	}
	if c.Providers.MaxRangeGap == 0 {
		c.Providers.MaxRangeGap = 30 * time.Minute
	}
	if c.Reconcile.Horizon == 0 {
		c.Reconcile.Horizon = time.Hour
	}
	if c.Reconcile.PassDeadline == 0 {
		c.Reconcile.PassDeadline = 30 * time.Second
	}
	if c.Stream.MaxBackoff == 0 {
		c.Stream.MaxBackoff = time.Minute
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Source.DataDir == "" {
		return fmt.Errorf("source.data_dir is required")
	}
	switch c.Cache.Backend {
	case "", "none", "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.backend must be 'none', 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}
	if len(c.Providers.Order) == 0 {
		return fmt.Errorf("providers.order cannot be empty")
	}
	for _, p := range c.Providers.Order {
		switch p {
		case "coingecko", "binance", "cryptocompare":
		default:
			return fmt.Errorf("unknown provider '%s' in providers.order", p)
		}
	}
	if c.Reconcile.Horizon <= 0 {
		return fmt.Errorf("reconcile.horizon must be positive")
	}
	if c.Cache.BucketWidth <= 0 {
		return fmt.Errorf("cache.bucket_width must be positive")
	}
	return nil
}
