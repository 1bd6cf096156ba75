package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall/internal/callengine/livekit"
	"github.com/vovakirdan/wirecall/internal/callengine/loopback"
	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/core"
	"github.com/vovakirdan/wirecall/internal/metrics"
	"github.com/vovakirdan/wirecall/internal/service/calls"
	"github.com/vovakirdan/wirecall/internal/store"
	"github.com/vovakirdan/wirecall/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirecall/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	phone           *core.Phone
	engine          *loopback.Engine
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	history := calls.New(st, logger)
	m := metrics.New()
	bridge := transporthttp.NewBridge(cfg.AuxViews, cfg.EventBuffer, logger)

	engine := loopback.New(loopback.WithAutoConfirm())
	phone := core.NewPhone(engine, core.MultiHandler{bridge, history, m}, logger,
		core.WithVideoActivated(cfg.VideoLicenseActivated),
	)

	opts := []transporthttp.Option{
		transporthttp.WithInjector(engine),
		transporthttp.WithMetrics(m.Handler()),
	}
	if cfg.LiveKitEnabled() {
		opts = append(opts,
			transporthttp.WithTokenIssuer(livekit.NewTokenIssuer(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL)),
			transporthttp.WithWebhook(
				livekit.NewWebhookReceiver(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret),
				livekit.NewRoster(cfg.LiveKitIdentity),
			),
		)
		logger.Info().
			Str("livekit_url", cfg.LiveKitURL).
			Str("livekit_identity", cfg.LiveKitIdentity).
			Msg("livekit join tokens and webhooks enabled")
	}

	server := transporthttp.NewServer(phone, bridge, history, cfg, logger, opts...)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		phone:           phone,
		engine:          engine,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the phone and the HTTP server and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.phone.Run(ctx)

	info, err := a.phone.Register(ctx)
	if err != nil {
		a.cleanup()
		return fmt.Errorf("register phone: %w", err)
	}
	a.log.Info().Str("device_url", info.DeviceURL).Msg("phone registered")

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup stops the engine and closes the store.
func (a *App) cleanup() {
	a.engine.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
