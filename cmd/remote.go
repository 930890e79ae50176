package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/scoutsync/internal/adapters/remote"
	"github.com/okian/scoutsync/internal/adapters/repository"
	"github.com/okian/scoutsync/pkg/logger"
)

// NewRemoteCommand serves the reference remote store over a SQLite file.
func NewRemoteCommand(opts *RootOptions) *cobra.Command {
	var (
		addr   string
		dbPath string
		apiKey string
	)
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Serve a reference remote store for development and tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				dbPath = filepath.Join(opts.cfg.DataDir, "remote.db")
			}
			if apiKey == "" {
				apiKey = opts.cfg.RemoteAPIKey
			}
			return serveRemote(cmd.Context(), addr, dbPath, apiKey)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9090", "listen address")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite file holding the remote collections")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "bearer token required from clients")
	return cmd
}

func serveRemote(parent context.Context, addr, dbPath, apiKey string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.Get().Named("remote")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("create remote dir: %w", err)
	}
	store, err := repository.OpenSQLite(ctx, dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              addr,
		Handler:           remote.NewHandler(store, apiKey),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "serving reference remote",
			logger.String("addr", addr),
			logger.String("db", dbPath),
			logger.Bool("auth", apiKey != ""))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
