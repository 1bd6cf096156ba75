package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirecall/internal/app"
	"github.com/vovakirdan/wirecall/internal/config"
	"github.com/vovakirdan/wirecall/internal/log"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		addr         string
		dbPath       string
		videoEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the phone behind the HTTP and WebSocket bridge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New("info")
			cfg, path, err := config.Load(bootLogger, root.configPath)
			if err != nil {
				return err
			}

			var overrides config.Config
			overrides.Addr = addr
			overrides.DatabasePath = dbPath
			overrides.LogLevel = root.logLevel
			overrides.LogFormat = root.logFormat
			overrides.VideoLicenseActivated = videoEnabled
			cfg.UpdateFrom(overrides)

			logger := log.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
			logger.Info().Str("config", path).Str("addr", cfg.Addr).Msg("starting wirecall")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			if err := application.Run(ctx); err != nil {
				return fmt.Errorf("server exited with error: %w", err)
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database path")
	cmd.Flags().BoolVar(&videoEnabled, "video", false, "start with the video license activated")
	return cmd
}

