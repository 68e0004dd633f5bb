package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raine/listing-analyzer/config"
	"github.com/raine/listing-analyzer/internal/analysis"
	"github.com/raine/listing-analyzer/internal/download"
	"github.com/raine/listing-analyzer/internal/llm"
	"github.com/raine/listing-analyzer/internal/server"
	"github.com/raine/listing-analyzer/internal/storage"
	"github.com/raine/listing-analyzer/internal/translate"
	"github.com/raine/listing-analyzer/internal/vision"
	"github.com/raine/listing-analyzer/internal/workerpool"
	"github.com/raine/listing-analyzer/internal/workflow"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 30 * time.Second
	pruneInterval   = time.Hour
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	setupLogging(cfg)

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gateway, err := llm.NewGeminiGateway(ctx, llm.GeminiConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.GeminiModel,
		Timeout:   cfg.InferenceTimeout,
		MaxImages: cfg.MaxImagesPerCall,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize gemini gateway")
	}
	log.Info().Str("model", cfg.GeminiModel).Dur("timeout", cfg.InferenceTimeout).Msg("gemini gateway initialized")

	var direct vision.Analyzer = vision.NewGeminiAnalyzer(gateway)
	cache, err := openCache(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.CacheBackend).Msg("failed to open analysis cache")
	}
	if cache != nil {
		defer cache.Close()
		direct = vision.NewCachedAnalyzer(direct, cache, cfg.CacheTTL)
		log.Info().Str("backend", cfg.CacheBackend).Dur("ttl", cfg.CacheTTL).Msg("direct analysis caching enabled")
	}

	svc := analysis.NewService(
		workflow.NewOrchestrator(gateway),
		direct,
		translate.NewTranslator(gateway),
	)

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(server.Options{
		Service: svc,
		Fetcher: download.NewFetcher(),
		Pool:    workerpool.New(cfg.WorkerPoolSize),
	})
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Int("workers", cfg.WorkerPoolSize).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down, waiting for in-flight requests")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if sqlite, ok := cache.(*storage.SQLiteCache); ok {
		g.Go(func() error {
			pruneLoop(ctx, sqlite)
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func openCache(ctx context.Context, cfg *config.Config) (storage.Cache, error) {
	switch cfg.CacheBackend {
	case config.CacheSQLite:
		return storage.NewSQLiteCache(cfg.CacheSQLitePath)
	case config.CacheRedis:
		return storage.NewRedisCache(ctx, storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, nil
	}
}

// pruneLoop removes expired SQLite cache rows until ctx is done.
func pruneLoop(ctx context.Context, cache *storage.SQLiteCache) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := cache.Prune(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("failed to prune analysis cache")
				continue
			}
			if n > 0 {
				log.Info().Int64("removed", n).Msg("pruned analysis cache")
			}
		}
	}
}
