package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/facturaIA/textline-ocr-service/api"
	"github.com/facturaIA/textline-ocr-service/internal/cache"
	"github.com/facturaIA/textline-ocr-service/internal/config"
	"github.com/facturaIA/textline-ocr-service/internal/db"
	"github.com/facturaIA/textline-ocr-service/internal/recognizer"
	"github.com/facturaIA/textline-ocr-service/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// A missing .env is normal outside local development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env: %v", err)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The recognizer is created once and shared by all requests
	rec, err := recognizer.New(cfg.OCR)
	if err != nil {
		return err
	}
	defer func() { _ = rec.Close() }()
	logger.Info("OCR engine initialized", "engine", rec.Name(), "workers", cfg.OCR.Workers, "language", cfg.OCR.Language)

	var opts []api.Option

	// Initialize database connection pool
	store, err := db.OpenFromEnv(ctx)
	switch {
	case errors.Is(err, db.ErrNotConfigured):
		logger.Info("database not configured, scan history disabled")
	case err != nil:
		logger.Warn("database not available, running in OCR-only mode", "error", err)
	default:
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Warn("failed to prepare scans table", "error", err)
		}
		opts = append(opts, api.WithScanStore(store))
		logger.Info("database connection pool initialized")
	}

	// Initialize MinIO storage
	images, err := storage.NewFromEnv(ctx)
	switch {
	case errors.Is(err, storage.ErrNotConfigured):
		logger.Info("storage not configured, images will not be stored")
	case err != nil:
		logger.Warn("MinIO storage not available, images will not be stored", "error", err)
	default:
		opts = append(opts, api.WithImageStore(images))
		logger.Info("MinIO storage initialized", "bucket", images.Bucket())
	}

	// Initialize result cache
	if cfg.Cache.RedisURL != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			logger.Warn("Redis not available, result cache disabled", "error", err)
		} else {
			defer func() { _ = redisCache.Close() }()
			opts = append(opts, api.WithResultCache(redisCache))
			logger.Info("result cache initialized", "ttl", cfg.Cache.TTL)
		}
	}

	handler := api.NewHandler(cfg, rec, logger, opts...)

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Router(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting textline OCR service",
			"version", api.Version,
			"addr", server.Addr,
			"line_threshold", cfg.OCR.LineThreshold,
		)
		logger.Info("endpoints",
			"ocr", "POST /kj, POST /api/ocr",
			"scans", "GET /api/scans, GET|DELETE /api/scans/{id}, GET /api/scans/{id}/image",
			"monitoring", "GET /health, GET /metrics",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("HTTP server shutdown completed")
	return nil
}
