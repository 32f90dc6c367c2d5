package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openmusicplayer/mediagrab/internal/api"
	"github.com/openmusicplayer/mediagrab/internal/cache"
	"github.com/openmusicplayer/mediagrab/internal/config"
	"github.com/openmusicplayer/mediagrab/internal/download"
	"github.com/openmusicplayer/mediagrab/internal/health"
	"github.com/openmusicplayer/mediagrab/internal/logger"
	"github.com/openmusicplayer/mediagrab/internal/metrics"
	"github.com/openmusicplayer/mediagrab/internal/search"
	"github.com/openmusicplayer/mediagrab/internal/storage"
	"github.com/openmusicplayer/mediagrab/internal/validators"
	"github.com/openmusicplayer/mediagrab/internal/websocket"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logger.SetDefault(logger.New(&logger.Config{
		Output: os.Stdout,
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	}))
	log := logger.Default().WithComponent("server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := download.NewService(&download.ServiceConfig{
		TickInterval:   cfg.TickInterval,
		MaxIncrement:   cfg.MaxIncrement,
		MaxRunDuration: cfg.MaxRunDuration,
		MaxRetries:     cfg.MaxRetries,
		Seed:           cfg.RandomSeed,
		ArtifactScale:  cfg.ArtifactScale,
	})

	checker := health.NewChecker(&health.CheckerConfig{Engine: svc, Version: cfg.Version})
	searchHandlers := search.NewHandlers(search.DefaultCatalog())

	if cfg.RedisEnabled() {
		c, err := cache.New(cfg.RedisURL)
		if err != nil {
			log.Error(ctx, "redis unavailable, search cache disabled", err)
		} else {
			defer c.Close()
			searchHandlers.UseCache(c, cfg.CacheTTL)
			checker.Add("redis", c.Ping, true)
		}

		pub, err := download.NewRedisPublisher(cfg.RedisURL, cfg.EventsChannel)
		if err != nil {
			log.Error(ctx, "redis unavailable, event bus disabled", err)
		} else {
			defer pub.Close()
			go pub.Run(ctx, svc)
		}
	}

	if cfg.StorageEnabled() {
		storageCfg := &storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		}
		if err := startExporter(ctx, storageCfg, svc, cfg.S3PresignTTL, checker); err != nil {
			log.Error(ctx, "object storage unavailable, artifacts stay in memory", err)
		}
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)
	detach := websocket.NewProgressTracker(hub).Attach(svc)
	defer detach()

	m := metrics.Default()
	stopObserving := m.ObserveTasks(svc)
	defer stopObserving()
	m.Sample("websocket_clients", "Connected progress stream clients", func() float64 {
		return float64(hub.TotalClients())
	})

	router := api.NewRouter(&api.Dependencies{
		Tasks:       svc,
		Search:      searchHandlers,
		Validators:  validators.NewHandlers(validators.DefaultRegistry()),
		WebSocket:   websocket.NewHandler(hub, svc, cfg.CORSOrigins),
		Health:      health.NewHandler(checker),
		Metrics:     m,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting server", map[string]interface{}{
			"addr":    cfg.ServerAddr,
			"version": cfg.Version,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutdown signal received")
	case err := <-errCh:
		log.Error(context.Background(), "server failed", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "http shutdown", err)
	}
	if err := svc.Close(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "download service shutdown", err)
	}
	log.Info(shutdownCtx, "server stopped")
}

func startExporter(ctx context.Context, cfg *storage.Config, svc *download.Service, ttl time.Duration, checker *health.Checker) error {
	client, err := storage.New(cfg)
	if err != nil {
		return err
	}

	setupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.EnsureBucket(setupCtx); err != nil {
		return err
	}

	exporter := storage.NewExporter(storage.NewS3Storage(cfg), client, svc, ttl)
	go exporter.Run(ctx)

	checker.Add("storage", client.Ping, true)
	return nil
}
