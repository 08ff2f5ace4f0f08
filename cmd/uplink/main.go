package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/emberfn/uplink/internal/server"
	"github.com/emberfn/uplink/internal/store"
	"github.com/emberfn/uplink/pkg/config"
	"github.com/emberfn/uplink/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger = logging.New(logging.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// Standalone runs use the in-memory collaborator stores; deployments
	// wire the real account/friend/server backends here.
	stores := server.Stores{
		Accounts: store.NewMemoryAccounts(),
		Friends:  store.NewMemoryFriends(),
		Servers:  store.NewMemoryServers(),
	}

	app := server.NewApp(logger, ctx, cfg, stores)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
