package di

import (
	"fmt"

	"predeval/internal/csvsource"
	"predeval/internal/domain/repository"
	"predeval/internal/handler/api"
	"predeval/internal/pricestore"
	"predeval/internal/provider"
	"predeval/internal/provider/ratelimit"
	"predeval/internal/reconcile"
	"predeval/internal/stream"
	"predeval/internal/watcher"
	"predeval/pkg/cache"
	"predeval/pkg/config"
	xhttp "predeval/pkg/http"
	applogger "predeval/pkg/logger"
	"predeval/pkg/metrics"
	"predeval/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCache builds the configured cache backend. A Redis failure is not
// fatal: reconciliation runs cacheless (every lookup misses) rather than
// refusing to start.
func ProvideCache(cfg *config.Config, l *applogger.Logger) cache.Service {
	newRedis := func() (*cache.RedisCache, error) {
		return cache.NewRedisCache(
			cache.WithRedisHost(cfg.Cache.Redis.Host),
			cache.WithRedisPort(cfg.Cache.Redis.Port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
		)
	}

	switch cfg.Cache.Backend {
	case "memory":
		return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
	case "redis":
		rc, err := newRedis()
		if err != nil {
			l.Warn("redis unavailable, running without price cache", applogger.Error(err))
			return nil
		}
		return rc
	case "layered":
		rc, err := newRedis()
		if err != nil {
			l.Warn("redis unavailable, falling back to memory cache", applogger.Error(err))
			return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
		}
		return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MemoryMaxSize))
	default: // "none"
		return nil
	}
}

// ProvidePriceStore creates the bucketed price store over the cache backend.
func ProvidePriceStore(cfg *config.Config, backend cache.Service, l *applogger.Logger, m repository.Metrics) *pricestore.Store {
	return pricestore.New(backend, cfg.Cache.BucketWidth, l, m)
}

// ProvideHTTPClient creates a shared HTTP client for price providers.
func ProvideHTTPClient(cfg *config.Config) *xhttp.Client {
	return xhttp.NewClient(xhttp.WithTimeout(cfg.Providers.CallTimeout))
}

// ProvidePriceFetcher assembles the provider fallback chain in configured
// order, each provider wrapped with its own rate limit.
func ProvidePriceFetcher(cfg *config.Config, client *xhttp.Client, l *applogger.Logger, m repository.Metrics) (reconcile.PriceFetcher, error) {
	limiter := ratelimit.New()

	chain := make([]provider.Provider, 0, len(cfg.Providers.Order))
	for _, name := range cfg.Providers.Order {
		switch name {
		case "coingecko":
			p := provider.NewCoinGecko(cfg.Providers.CoinGecko.BaseURL, cfg.Providers.CoinGecko.APIKey, client)
			chain = append(chain, provider.NewLimited(p, limiter,
				cfg.Providers.CoinGecko.RequestsPerMinute, cfg.Providers.CoinGecko.Burst))
		case "binance":
			p := provider.NewBinance(cfg.Providers.Binance.BaseURL, client)
			chain = append(chain, provider.NewLimited(p, limiter,
				cfg.Providers.Binance.RequestsPerMinute, cfg.Providers.Binance.Burst))
		case "cryptocompare":
			p := provider.NewCryptoCompare(cfg.Providers.CryptoCompare.BaseURL, cfg.Providers.CryptoCompare.APIKey, client)
			chain = append(chain, provider.NewLimited(p, limiter,
				cfg.Providers.CryptoCompare.RequestsPerMinute, cfg.Providers.CryptoCompare.Burst))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	return provider.NewChain(chain, cfg.Providers.CallTimeout, cfg.Providers.MaxRangeGap,
		cfg.Cache.BucketWidth, l, m), nil
}

// ProvideSource creates the CSV prediction source.
func ProvideSource(cfg *config.Config, l *applogger.Logger) repository.PredictionSource {
	return csvsource.New(cfg.Source.DataDir, l)
}

// ProvideReconciler creates the reconciliation engine.
func ProvideReconciler(
	source repository.PredictionSource,
	store *pricestore.Store,
	fetcher reconcile.PriceFetcher,
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
) *reconcile.Reconciler {
	return reconcile.New(source, store, fetcher,
		cfg.Reconcile.Horizon, cfg.Reconcile.PassDeadline, l, m,
		reconcile.WithMaxRows(cfg.Source.MaxRows),
	)
}

// ProvideHub creates the WebSocket update hub.
func ProvideHub(l *applogger.Logger) *api.Hub {
	return api.NewHub(l)
}

// ProvideHandler creates the dashboard API handler.
func ProvideHandler(
	l *applogger.Logger,
	source repository.PredictionSource,
	r *reconcile.Reconciler,
	hub *api.Hub,
) *api.Handler {
	return api.NewHandler(l, source, r, hub)
}

// ProvideWatcher creates the prediction file watcher, pushing change events
// to WebSocket subscribers. Returns nil when watching is disabled.
func ProvideWatcher(cfg *config.Config, source repository.PredictionSource, hub *api.Hub, l *applogger.Logger) *watcher.Watcher {
	if !cfg.Source.WatchEnabled {
		return nil
	}
	src, ok := source.(*csvsource.Source)
	if !ok {
		return nil
	}
	return watcher.New(src, cfg.Source.PollInterval, func(u watcher.Update) {
		hub.NotifyUpdate(u.Miner)
	}, l)
}

// ProvideStream creates the live price stream client. Returns nil when the
// stream is disabled.
func ProvideStream(cfg *config.Config, store *pricestore.Store, l *applogger.Logger, m repository.Metrics) *stream.Client {
	if !cfg.Stream.Enabled {
		return nil
	}
	return stream.New(cfg.Stream.URL, cfg.Stream.Symbols, store, cfg.Stream.MaxBackoff, l, m)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	handler *api.Handler,
	hub *api.Hub,
	w *watcher.Watcher,
	sc *stream.Client,
) *server.App {
	return server.New(cfg, l, handler, hub, w, sc)
}
