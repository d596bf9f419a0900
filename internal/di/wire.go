//go:build wireinject
// +build wireinject

package di

import (
	"predeval/pkg/config"
	"predeval/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Price cache
		ProvideCache,
		ProvidePriceStore,

		// Providers
		ProvideHTTPClient,
		ProvidePriceFetcher,

		// Source and reconciliation
		ProvideSource,
		ProvideReconciler,

		// API surface
		ProvideHub,
		ProvideHandler,

		// Background workers
		ProvideWatcher,
		ProvideStream,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
