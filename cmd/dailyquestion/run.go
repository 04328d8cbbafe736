package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/dukerupert/dailyquestion/internal/model"
	"github.com/dukerupert/dailyquestion/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one daily progression batch now and print its report",
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

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		report, runErr := srv.Orchestrator().RunDailyProgression(ctx, model.TriggerManual)
		if report != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			err = enc.Encode(report)
		}
		return multierr.Append(runErr, err)
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Retry pending point and notification deliveries once",
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

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		delivered, failed, err := srv.Relay().Drain(ctx)
		logger.Info("outbox drained", "delivered", delivered, "failed", failed)
		return err
	},
}
