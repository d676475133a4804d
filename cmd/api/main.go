// Package main is the entry point for the diary API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/recordiary/backend/internal/api"
	"github.com/recordiary/backend/internal/capture"
	"github.com/recordiary/backend/internal/config"
	"github.com/recordiary/backend/internal/deco"
	"github.com/recordiary/backend/internal/diary"
	"github.com/recordiary/backend/internal/enrich"
	"github.com/recordiary/backend/internal/health"
	"github.com/recordiary/backend/internal/jobs"
	"github.com/recordiary/backend/internal/middleware"
	"github.com/recordiary/backend/internal/storage"
	"github.com/recordiary/backend/internal/tracing"
)

const version = "0.0.1"

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Recordiary API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(registry); err != nil {
		logger.Error("failed to register HTTP metrics", "error", err)
		os.Exit(1)
	}
	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(registry); err != nil {
		logger.Error("failed to register job metrics", "error", err)
		os.Exit(1)
	}

	// Tracing is opt-in; the provider is inert when disabled.
	traceProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "recordiary-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: 1.0,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Record stores: Postgres when configured, in-memory otherwise.
	var (
		diaries   diary.Store
		decos     deco.Store
		db        *sql.DB
		dbChecker api.HealthChecker
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		defer db.Close()

		diaries = diary.NewPostgresStore(db, logger)
		decos = deco.NewPostgresStore(db, logger)
		dbChecker = health.NewDBChecker(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		diaries = diary.NewInMemoryStore()
		decos = deco.NewInMemoryStore(diaries)
	}

	// Blob stores: one bucket for recordings, one for model assets.
	var (
		audioBlobs     storage.BlobStore
		modelBlobs     storage.BlobStore
		storageChecker api.HealthChecker
	)
	if cfg.StorageEndpoint != "" {
		urlExpiry := time.Duration(cfg.StorageURLExpiryDays) * 24 * time.Hour
		audioBlobs, err = storage.NewS3Store(storage.S3Config{
			Bucket:          cfg.AudioBucketName,
			AccessKeyID:     cfg.StorageAccessKeyID,
			SecretAccessKey: cfg.StorageSecretAccessKey,
			Endpoint:        cfg.StorageEndpoint,
			URLExpiry:       urlExpiry,
		})
		if err != nil {
			logger.Error("failed to create audio blob store", "error", err)
			os.Exit(1)
		}
		modelBlobs, err = storage.NewS3Store(storage.S3Config{
			Bucket:          cfg.ModelBucketName,
			AccessKeyID:     cfg.StorageAccessKeyID,
			SecretAccessKey: cfg.StorageSecretAccessKey,
			Endpoint:        cfg.StorageEndpoint,
			URLExpiry:       urlExpiry,
		})
		if err != nil {
			logger.Error("failed to create model blob store", "error", err)
			os.Exit(1)
		}
		storageChecker = health.NewStorageChecker(audioBlobs)
	} else {
		logger.Warn("STORAGE_ENDPOINT not set, using in-memory blob stores")
		audioBlobs = storage.NewInMemoryStore()
		modelBlobs = storage.NewInMemoryStore()
	}

	// Redis backs the dead-letter store and the rate limiter.
	var (
		redisClient  *redis.Client
		redisChecker api.HealthChecker
		deadLetters  jobs.DeadLetterStore
	)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		redisChecker = health.NewRedisChecker(redisClient)
		deadLetters = jobs.NewRedisDeadLetterStore(redisClient)
	} else {
		logger.Warn("REDIS_URL not set, dead letters are kept in memory")
		deadLetters = jobs.NewInMemoryDeadLetterStore(0)
	}

	// Enrichment pipeline. Without an API key capture still works, the
	// records just stay unenriched.
	var dispatcher *jobs.Dispatcher
	if cfg.OpenAIAPIKey != "" {
		provider, err := enrich.NewOpenAIProvider(enrich.OpenAIConfig{
			APIKey:          cfg.OpenAIAPIKey,
			BaseURL:         cfg.OpenAIBaseURL,
			TranscribeModel: cfg.OpenAITranscribeModel,
			ChatModel:       cfg.OpenAIChatModel,
		})
		if err != nil {
			logger.Error("failed to create enrichment provider", "error", err)
			os.Exit(1)
		}
		pipeline := enrich.NewPipeline(diaries, provider, deadLetters, logger, enrich.PipelineConfig{
			StageTimeout: time.Duration(cfg.EnrichStageTimeoutSecs) * time.Second,
		})
		dispatcher = jobs.NewDispatcher(jobs.DispatcherConfig{
			Workers:   cfg.EnrichWorkers,
			QueueSize: cfg.EnrichQueueSize,
		}, pipeline, deadLetters, logger, jobMetrics)
	} else {
		logger.Warn("OPENAI_API_KEY not set, enrichment is disabled")
	}

	var captureDispatcher capture.Dispatcher
	if dispatcher != nil {
		captureDispatcher = dispatcher
	}
	captureService := capture.NewService(diaries, audioBlobs, captureDispatcher, logger)
	catalogService := deco.NewService(decos, modelBlobs, logger)

	maxUploadBytes := int64(cfg.MaxUploadSizeMB) << 20

	var enrichHandlers *api.EnrichHandlers
	if dispatcher != nil {
		enrichHandlers = api.NewEnrichHandlers(deadLetters, audioBlobs, dispatcher)
	}

	mux := api.NewRouter(api.RouterConfig{
		Diary:  api.NewDiaryHandlers(captureService, diaries, maxUploadBytes),
		Deco:   api.NewDecoHandlers(catalogService, decos, maxUploadBytes),
		Room:   api.NewRoomHandlers(decos),
		Enrich: enrichHandlers,
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			DBChecker:      dbChecker,
			StorageChecker: storageChecker,
			RedisChecker:   redisChecker,
		}),
		Registry: registry,
		Version:  version,
	})

	// Middleware chain, outermost first: RequestID -> CORS -> Tracing ->
	// HTTPMetrics -> RateLimiter -> Logging -> mux. Logging sits
	// innermost so handlers can push error codes back through the
	// writer chain; CORS sits outside metrics so preflights do not
	// skew request counts.
	var handler http.Handler = middleware.Logging(logger)(mux)
	if cfg.RateLimitEnabled {
		var limitStore middleware.RateLimitStore
		if redisClient != nil {
			limitStore = middleware.NewRedisRateLimitStore(redisClient).WithMetrics(httpMetrics)
		} else {
			limitStore = middleware.NewInMemoryRateLimitStore()
		}
		handler = middleware.RateLimiter(limitStore, middleware.DefaultGlobalLimit(), middleware.UserKeyFunc())(handler)
	}
	handler = middleware.HTTPMetrics(httpMetrics)(handler)
	if cfg.TracingEnabled {
		handler = middleware.Tracing("recordiary-api")(handler)
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			MaxAge:         3600,
		})(handler)
	}
	if cfg.ProfilingEnabled {
		handler = middleware.Profiling(middleware.ProfilingConfig{
			Enabled:     true,
			Environment: cfg.Env,
		})(handler)
	}
	handler = middleware.RequestID(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Workers run for the life of the process.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	if dispatcher != nil {
		dispatcher.Start(runCtx)
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Drain in-flight enrichment before exiting; a killed worker's job
	// lands in the dead-letter store on the next retry sweep.
	if dispatcher != nil {
		if err := dispatcher.Stop(ctx); err != nil {
			logger.Error("dispatcher did not drain in time", "error", err)
		}
	}

	if err := traceProvider.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down tracing", "error", err)
	}

	logger.Info("server stopped")
}
