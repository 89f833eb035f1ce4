package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/airwave/stationd/config"
	"github.com/airwave/stationd/internal/audioframe"
	"github.com/airwave/stationd/internal/catalog"
	"github.com/airwave/stationd/internal/filestore"
	"github.com/airwave/stationd/internal/server"
	"github.com/airwave/stationd/internal/sessionauth"
	"github.com/airwave/stationd/internal/station"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting station",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"station_name", cfg.StationName,
	)

	store, err := catalog.Open(cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open catalog", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	files := filestore.New(cfg.MusicDir())

	scanCtx, cancelScan := context.WithTimeout(context.Background(), 2*time.Minute)
	scanResult, err := store.ScanDirectory(scanCtx, cfg.MusicDir())
	cancelScan()
	if err != nil {
		slog.Error("initial catalog scan failed", "error", err)
		os.Exit(1)
	}
	slog.Info("initial catalog scan complete", "scanned", scanResult.Scanned, "skipped", scanResult.Skipped)

	auth := sessionauth.New(store, sessionauth.Options{
		CookieKey: cfg.CookieKey,
		Secure:    true,
	})

	burstTargetUS := int64(config.BurstTargetSeconds * 1_000_000)
	state := station.New(burstTargetUS, time.Now())
	bus := station.NewEventBus()
	broadcaster := station.NewBroadcaster(state, bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutdown signal received")
		cancel()
	}()

	queue := make(chan audioframe.StreamMessage, config.ProducerQueueSize)

	go func() {
		station.PlaylistSource(ctx, store, files, config.ExpectedSampleRate, config.PlaylistRetryBackoff, queue)
		close(queue)
	}()

	go broadcaster.Run(ctx, queue)
	go station.RunJanitor(ctx, state, store, config.JanitorInterval, config.HeartbeatTimeout)

	srv := server.New(cfg, state, broadcaster, bus, auth)
	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("station stopped")
}
