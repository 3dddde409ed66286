// Command sweeper runs one artifact retention sweep and exits, for use from
// cron or a Kubernetes CronJob when the in-process sweep is disabled.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/your-org/facehook/internal/config"
	"github.com/your-org/facehook/internal/housekeeping"
	"github.com/your-org/facehook/internal/observability"
	"github.com/your-org/facehook/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	retention := flag.Duration("retention", 0, "override storage.retention")
	flag.Parse()

	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	cfg, err := config.Load(*configPath, !explicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *retention > 0 {
		cfg.Storage.Retention = *retention
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.Storage, cfg.MinIO)
	if err != nil {
		slog.Error("open artifact storage", "error", err)
		os.Exit(1)
	}

	deleted, err := housekeeping.NewSweeper(store, cfg.Storage.Retention).Sweep(ctx)
	if err != nil {
		slog.Error("sweep", "error", err)
		os.Exit(1)
	}
	slog.Info("sweep finished", "deleted", deleted, "retention", cfg.Storage.Retention)
}
