// Package app wires the store, hub, TCP server and admin endpoint together.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/avolkov/chatline/internal/admin"
	"github.com/avolkov/chatline/internal/config"
	"github.com/avolkov/chatline/internal/metrics"
	"github.com/avolkov/chatline/internal/server"
	"github.com/avolkov/chatline/internal/store"
	filestore "github.com/avolkov/chatline/internal/store/file"
	"github.com/avolkov/chatline/internal/store/sqlite"
)

const adminShutdownTimeout = 5 * time.Second

// App owns the server-side components and their lifecycle.
type App struct {
	cfg   config.Config
	log   *zerolog.Logger
	store store.Store
	hub   *server.Hub
	srv   *server.Server
	admin *http.Server
}

// New constructs the application. All collaborators are built here and
// injected; nothing is reinitialized after startup.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := newStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("backend", cfg.Store.Backend).Msg("store initialized")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	dispatcher := server.NewDispatcher(st, st, logger, m)
	hub := server.NewHub(dispatcher, cfg.PollTimeout, logger, m)
	srv := server.New(cfg.Addr(), hub, logger, m)

	a := &App{
		cfg:   cfg,
		log:   logger,
		store: st,
		hub:   hub,
		srv:   srv,
	}
	if cfg.AdminAddr != "" {
		a.admin = admin.NewServer(cfg.AdminAddr, hub, registry, logger)
	}
	return a, nil
}

func newStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "file", "":
		return filestore.New(cfg.CredentialsFile, cfg.HistoryFile)
	case "sqlite":
		return sqlite.New(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Run starts the hub, the TCP listener and the admin endpoint, and blocks
// until the context is cancelled or the listener fails.
func (a *App) Run(ctx context.Context) error {
	if err := a.srv.Listen(); err != nil {
		a.cleanup()
		return err
	}

	go a.hub.Run(ctx)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.srv.Serve(ctx)
	}()

	if a.admin != nil {
		go func() {
			a.log.Info().Str("addr", a.admin.Addr).Msg("admin endpoint listening")
			if err := a.admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Error().Err(err).Msg("admin endpoint failed")
			}
		}()
	}

	select {
	case err := <-serverErr:
		a.shutdownAdmin()
		a.cleanup()
		return err
	case <-ctx.Done():
		a.shutdownAdmin()
		err := <-serverErr
		a.cleanup()
		return err
	}
}

func (a *App) shutdownAdmin() {
	if a.admin == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
	defer cancel()
	if err := a.admin.Shutdown(shutdownCtx); err != nil {
		a.log.Warn().Err(err).Msg("admin shutdown failed")
	}
}

func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
