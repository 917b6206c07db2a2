package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/watchparty-server/internal/auth"
	"github.com/vovakirdan/watchparty-server/internal/config"
	"github.com/vovakirdan/watchparty-server/internal/core"
	"github.com/vovakirdan/watchparty-server/internal/service/library"
	"github.com/vovakirdan/watchparty-server/internal/store"
	"github.com/vovakirdan/watchparty-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/watchparty-server/internal/transport/http"
)

// App wires together store, room hub and transport layers.
type App struct {
	server *stdhttp.Server
	cfg    *config.Config
	hub    *core.Hub
	store  store.Store
	log    *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	lib := library.New(st, logger)

	hub := core.NewHub(core.Options{
		GracePeriod:     cfg.GracePeriod,
		ChatHistorySize: cfg.ChatHistorySize,
		RecordTimeout:   cfg.WatchRecordTimeout,
		Recorder:        lib,
		Logger:          logger,
	})

	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:     hub,
		Auth:    authService,
		Library: lib,
	}, cfg, logger)

	return &App{
		server: server,
		cfg:    cfg,
		hub:    hub,
		store:  st,
		log:    logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	// The hub is not derived from ctx: it has to outlive the server's drain so
	// in-flight handlers can still dispatch and report closes.
	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		} else {
			runErr = <-serverErr
		}
	}

	// hub stops after the listener has drained
	stopHub()
	<-hubDone
	a.cleanup()
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

// Migrate opens the database, applies pending migrations and closes it.
func Migrate(cfg *config.Config, logger *zerolog.Logger) error {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cfg.DatabasePath, err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database migrated")
	return st.Close()
}
