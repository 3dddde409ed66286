package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/your-org/facehook/internal/api"
	"github.com/your-org/facehook/internal/config"
	"github.com/your-org/facehook/internal/housekeeping"
	"github.com/your-org/facehook/internal/images"
	"github.com/your-org/facehook/internal/observability"
	"github.com/your-org/facehook/internal/payload"
	"github.com/your-org/facehook/internal/queue"
	"github.com/your-org/facehook/internal/recognition"
	"github.com/your-org/facehook/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, !flagSet("config"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting facehook", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.Open(ctx, cfg.Storage, cfg.MinIO)
	if err != nil {
		slog.Error("open artifact storage", "error", err)
		os.Exit(1)
	}

	// NATS is optional; without a URL records are only served over HTTP.
	var producer *queue.Producer
	var publisher recognition.Publisher
	if cfg.NATS.URL != "" {
		producer, err = queue.NewProducer(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStream(ctx); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}
		publisher = producer
	}

	svc := recognition.NewService(recognition.ServiceConfig{
		Decoder:             payload.NewDecoder(cfg.Upload.MaxFileBytes),
		Resolver:            images.NewResolver(store, images.NewDeviceClient(cfg.Device.FetchTimeout, cfg.Upload.MaxFileBytes)),
		Latest:              recognition.NewLatestStore(time.Now().UTC()),
		Publisher:           publisher,
		DiscardUnrecognized: cfg.Upload.Discard(),
	})

	go housekeeping.NewSweeper(store, cfg.Storage.Retention).Run(ctx, cfg.Storage.SweepInterval)

	router := api.NewRouter(api.RouterConfig{
		Service:       svc,
		Store:         store,
		Producer:      producer,
		PublicBaseURL: cfg.Server.PublicBaseURL,
		StaticDir:     cfg.Server.StaticDir,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
