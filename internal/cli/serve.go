// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/elitonnmelo/faceboi-app/herdserver"
)

// NewServeCommand creates the serve command.
func NewServeCommand(_ *RootOptions) *cobra.Command {
	var (
		configPath  string
		listen      string
		databaseURL string
		jwtSecret   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the authoritative herd store server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadServerConfig(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if databaseURL != "" {
				cfg.DatabaseURL = databaseURL
			}
			if jwtSecret != "" {
				cfg.JWTSecret = jwtSecret
			}
			return runServer(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres URL; empty runs in-memory")
	cmd.Flags().StringVar(&jwtSecret, "jwt-secret", "", "JWT signing secret (overrides config)")

	return cmd
}

func runServer(ctx context.Context, cfg ServerConfig) error {
	logger := slog.Default()

	var storage herdserver.Storage
	if cfg.DatabaseURL != "" {
		poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to parse database url: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		storage, err = herdserver.NewPostgresStorage(ctx, pool)
		if err != nil {
			return err
		}
		logger.Info("using postgres storage")
	} else {
		storage = herdserver.NewMemoryStorage()
		logger.Warn("using in-memory storage, data is lost on shutdown")
	}

	handler := herdserver.NewRouter(herdserver.Options{
		Storage: storage,
		Auth:    herdserver.NewJWTAuth(cfg.JWTSecret),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("herd server listening", "addr", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
