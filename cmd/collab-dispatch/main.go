package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/a-essam23/collab-dispatch/internal/server"
	"github.com/a-essam23/collab-dispatch/pkg/config"
	"github.com/a-essam23/collab-dispatch/pkg/logging"
	"github.com/a-essam23/collab-dispatch/pkg/store"
	"github.com/a-essam23/collab-dispatch/pkg/store/memstore"
	"github.com/a-essam23/collab-dispatch/pkg/store/mongostore"
)

func main() {
	flags := pflag.NewFlagSet("collab-dispatch", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	bootLogger := logging.New(slog.LevelInfo)
	cfg, err := config.Load(bootLogger, flags)
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	// Validate already accepted the level.
	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.New(level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("Failed to open store", slog.Any("error", err))
		os.Exit(1)
	}

	app, err := server.NewApp(logger, ctx, cfg, server.Options{Store: st})
	if err != nil {
		logger.Error("Failed to build application", slog.Any("error", err))
		os.Exit(1)
	}
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		logger.Warn("Using the in-memory store; nothing survives a restart")
		return memstore.New(), nil
	case config.StoreMongo:
		return mongostore.Connect(ctx, mongostore.Config{
			URI:              cfg.Mongo.URI,
			Database:         cfg.Mongo.Database,
			AppName:          "collab-dispatch",
			OperationTimeout: cfg.Mongo.OperationTimeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown store driver '%s'", cfg.Driver)
	}
}
