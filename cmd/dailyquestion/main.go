package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dukerupert/dailyquestion/internal/config"
	"github.com/dukerupert/dailyquestion/internal/database"
	"github.com/dukerupert/dailyquestion/internal/logging"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:          "dailyquestion",
	Short:        "Family daily question progression engine",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.AddCommand(serveCmd, runCmd, drainCmd, seedCmd, initFamilyCmd, vapidKeysCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads configuration, sets up logging and opens the database.
func bootstrap() (*config.Config, *slog.Logger, *sql.DB, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	return cfg, logger, db, nil
}
