// Command watcher runs execution-report stream watchers for every
// configured account until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/execwatch/execwatch/internal/config"
	"github.com/execwatch/execwatch/internal/notify"
	"github.com/execwatch/execwatch/internal/talos"
	"github.com/execwatch/execwatch/internal/telemetry"
	"github.com/execwatch/execwatch/internal/watch"
)

const (
	watcherLoggerPrefix      = "watcher "
	stopTimeout              = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file")
	flag.Parse()

	logger := log.New(os.Stderr, watcherLoggerPrefix, log.LstdFlags|log.Lmsgprefix)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if len(cfg.Watchers) == 0 {
		logger.Fatal("no watchers configured")
	}

	_, telemetryShutdown, err := telemetry.Init(ctx, telemetry.Settings{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
		Environment:  cfg.Telemetry.Environment,
	})
	if err != nil {
		logger.Fatalf("initialize telemetry: %v", err)
	}

	sink, err := buildSink(cfg, logger)
	if err != nil {
		logger.Fatalf("initialize notifier: %v", err)
	}

	registry := watch.NewRegistry(logger)
	for _, w := range cfg.Watchers {
		err := registry.Start(ctx, talos.WatcherConfig{
			Name:              w.Name,
			StreamURL:         w.StreamURL,
			Host:              w.Host,
			Path:              w.Path,
			APIKey:            w.APIKey,
			APISecret:         w.APISecret,
			SubscribeUser:     w.SubscribeUser,
			ExcludeUsers:      w.ExcludeUsers,
			SubAccounts:       w.SubAccounts,
			AccountLabel:      w.AccountLabel,
			PerExecFills:      w.PerExecFills,
			QuoteQtyOverrides: w.QuoteQtyOverrides,
			ReadTimeout:       w.ReadTimeout,
			Logger:            logger,
		}, sink)
		if err != nil {
			logger.Fatalf("start watcher %q: %v", w.Name, err)
		}
	}
	logger.Printf("started %d watchers; awaiting shutdown signal", len(cfg.Watchers))

	<-ctx.Done()
	logger.Print("shutdown signal received")

	registry.StopAll(stopTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer shutdownCancel()
	if err := telemetryShutdown(shutdownCtx); err != nil {
		logger.Printf("telemetry shutdown: %v", err)
	}
	logger.Print("shutdown complete")
}

func buildSink(cfg config.Config, logger *log.Logger) (notify.Sink, error) {
	if cfg.Notifier.TelegramToken == "" {
		logger.Print("no telegram token configured, notifications go to stdout")
		return notify.NewWriter(os.Stdout), nil
	}
	return notify.NewTelegram(cfg.Notifier.TelegramToken, cfg.Notifier.TelegramChatID, logger)
}
