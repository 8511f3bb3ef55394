// Package commands is the CLI entry point: serve (default), migrate, seed
// and reap-events.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"donasiku_backend/internals/configs"
	database "donasiku_backend/internals/databases"
)

var Version = "dev"

func Execute() {
	root := &cobra.Command{
		Use:           "donasiku",
		Short:         "Donation payments and reconciliation backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(reapEventsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every subcommand starts from.
type env struct {
	cfg    *configs.Config
	logger *slog.Logger
	db     *gorm.DB
}

func bootstrap(withDB bool) (*env, error) {
	configs.LoadEnv()
	cfg, err := configs.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := configs.NewLogger(os.Stdout, cfg.LogLevel, cfg.IsProduction())
	slog.SetDefault(logger)

	e := &env{cfg: cfg, logger: logger}
	if !withDB {
		return e, nil
	}
	db, err := database.ConnectDB(cfg.DB, configs.NewGormLogger(logger, configs.GormLevel(cfg.LogLevel)))
	if err != nil {
		return nil, err
	}
	if err := database.TunePool(db); err != nil {
		logger.Warn("pool tune failed", "error", err)
	}
	e.db = db
	return e, nil
}

func (e *env) close() {
	if e.db == nil {
		return
	}
	if err := database.Close(e.db); err != nil {
		e.logger.Warn("close db", "error", err)
	}
}
