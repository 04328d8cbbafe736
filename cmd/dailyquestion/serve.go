package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dukerupert/dailyquestion/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the daily progression schedule",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		cfg, logger, db, err := bootstrap()
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, db.Close()) }()

		srv, err := server.New(db, cfg, server.Collaborators{}, logger)
		if err != nil {
			return err
		}

		httpServer := &http.Server{
			Addr:         ":" + cfg.Port,
			Handler:      srv.Router(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		srv.Start(ctx)

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("dailyquestion listening", "addr", httpServer.Addr, "schedule", cfg.ProgressionCron, "timezone", cfg.ProgressionTimezone)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info("shutting down")
		case err := <-serveErr:
			if err != nil {
				srv.Stop()
				return fmt.Errorf("server error: %w", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		err = httpServer.Shutdown(shutdownCtx)
		srv.Stop()
		return err
	},
}
