package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/token-pricer/internal/allocator"
	"github.com/eugenenazirov/token-pricer/internal/api"
	"github.com/eugenenazirov/token-pricer/internal/catalog"
	"github.com/eugenenazirov/token-pricer/internal/config"
	"github.com/eugenenazirov/token-pricer/internal/history"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	catalog   catalog.Catalog
	allocator allocator.Allocator
	history   *history.Repository
	handler   *api.Handler
	router    http.Handler
	logger    *zap.Logger
	server    *http.Server
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	cat := catalog.NewMemoryCatalog()

	runs, err := history.Open(cfg.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}

	alloc := allocator.New()
	handler := api.NewHandler(alloc, cat, runs, cfg.TargetSum, cfg.Currency)
	router := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	server := NewServer(cfg, router)

	return &App{
		catalog:   cat,
		allocator: alloc,
		history:   runs,
		handler:   handler,
		router:    router,
		logger:    logger,
		server:    server,
	}, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Close releases resources held by the application, currently the run
// history database.
func (a *App) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}
