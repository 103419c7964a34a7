package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskit/internal/analytics"
	"taskit/internal/config"
	"taskit/internal/events"
	"taskit/internal/notify"
	"taskit/internal/server"
	"taskit/internal/service"
	"taskit/internal/storage"
	"taskit/internal/storage/memory"
	"taskit/internal/storage/sqlite"
	"taskit/internal/util"
)

func main() {
	configFlag := flag.String("config", util.EnvOrDefault("TASKIT_CONFIG", "config.yaml"), "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		slog.Error("unable to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)
	logger.Info("TaskIt sprint planner", slog.String("storage", cfg.Storage), slog.Duration("sprint_length", cfg.SprintLength))

	store, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("unable to open storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	scheduler := notify.NewScheduler(logger, nil)
	defer scheduler.Stop()

	tracker := analytics.NewLogger(logger)
	if !cfg.Analytics {
		tracker.Deactivate()
	}

	svc := service.New(store,
		service.WithLogger(logger),
		service.WithBus(events.NewBus(logger)),
		service.WithNotifier(scheduler),
		service.WithTracker(tracker),
		service.WithSprintLength(cfg.SprintLength),
	)
	srv := server.New(svc, logger)

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped", slog.Int("pending_notifications", scheduler.Pending()))
}

func openStore(cfg config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Storage == "memory" {
		return memory.New(), nil
	}
	return sqlite.Open(cfg.DBPath, logger)
}
