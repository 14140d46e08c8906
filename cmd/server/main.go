package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/erpserver/internal/bootstrap"
	"github.com/JonMunkholm/erpserver/internal/config"
	"github.com/JonMunkholm/erpserver/internal/database"
	"github.com/JonMunkholm/erpserver/internal/logging"
	"github.com/JonMunkholm/erpserver/internal/supervisor"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	// Pools are created lazily, one per database, on first use
	manager := database.NewManager(cfg.Database)

	sup := supervisor.New(cfg, supervisor.Deps{
		Version:        version,
		Acquire:        bootstrap.ManagerAcquire(manager),
		Jobs:           manager,
		JobFuncs:       manager.JobFuncs(),
		Translations:   manager,
		Databases:      manager.Databases,
		Close:          manager.Close,
		InstallSignals: true,
	})

	// Run always ends the process through os.Exit
	sup.Run(context.Background())
}
