package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/acme/callbridge/internal/app"
	"github.com/acme/callbridge/internal/telemetry"
	statusworker "github.com/acme/callbridge/internal/worker/status"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := flag.String("config", getEnv("CONFIG_FILE", ""), "path to configuration file (defaults and CALLBRIDGE_* env when empty)")
	flag.Parse()

	container, err := app.Build(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer container.Close(context.Background())
	lg := container.Logger

	shutdown, err := telemetry.Setup(ctx, container.Config.Telemetry, container.Config.App.Name+"-status-worker")
	if err != nil {
		lg.Fatal("failed to initialize telemetry", zap.Error(err))
	}
	defer func() { _ = shutdown(context.Background()) }()

	if err := container.EnsureTopics(ctx); err != nil {
		lg.Fatal("failed to ensure kafka topics", zap.Error(err))
	}

	repos := container.Repositories()
	worker := statusworker.New(container.StatusReader(), repos.Registry, repos.Snapshots, lg)

	lg.Info("starting status worker", zap.String("topic", container.Config.Kafka.StatusTopic))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		lg.Fatal("worker terminated", zap.Error(err))
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
