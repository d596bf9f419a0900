package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"predeval/internal/handler/api"
	"predeval/internal/stream"
	"predeval/internal/watcher"
	"predeval/pkg/config"
	xhttp "predeval/pkg/http"
	applogger "predeval/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	handler    *api.Handler
	hub        *api.Hub
	watcher    *watcher.Watcher
	stream     *stream.Client
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	handler *api.Handler,
	hub *api.Hub,
	w *watcher.Watcher,
	sc *stream.Client,
) *App {
	return &App{
		cfg:     cfg,
		log:     log,
		handler: handler,
		hub:     hub,
		watcher: w,
		stream:  sc,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.httpServer = xhttp.NewServer(a.handler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithServerLogger(a.log),
	)

	// Start file watcher
	if a.watcher != nil {
		go a.watcher.Run(ctx)
		a.log.Info("file watcher started",
			applogger.String("data_dir", a.cfg.Source.DataDir),
			applogger.Duration("interval", a.cfg.Source.PollInterval))
	}

	// Start live price stream
	if a.stream != nil {
		go a.stream.Run(ctx)
		a.log.Info("price stream started", applogger.Strings("symbols", a.cfg.Stream.Symbols))
	}

	// Start HTTP server
	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	// Stop accepting WebSocket traffic first so clients see a clean close.
	if a.hub != nil {
		a.hub.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
		return err
	}

	a.log.Info("shutdown complete")
	return nil
}
