package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Freeeeeet/pbl_scheduler/internal/app"
	"github.com/Freeeeeet/pbl_scheduler/internal/config"
	"github.com/Freeeeeet/pbl_scheduler/internal/repository/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile     string
		migrateOnly bool
	)
	flagSet := pflag.NewFlagSet("scheduler", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "path to a dotenv file loaded before reading the environment")
	flagSet.BoolVar(&migrateOnly, "migrate-only", false, "apply database migrations and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := app.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting PBL scheduler",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage),
		zap.String("sso_mode", cfg.SSOMode),
		zap.String("time_zone", cfg.TimeZone),
		zap.Bool("env_file_loaded", cfg.EnvFileLoaded))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if migrateOnly {
		return migrate(ctx, cfg, logger)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}

func migrate(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Storage != config.StoragePostgres {
		return fmt.Errorf("--migrate-only requires STORAGE=postgres")
	}
	pool, err := postgres.Connect(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	return app.Migrate(ctx, pool, logger)
}
