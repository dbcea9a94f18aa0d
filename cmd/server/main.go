package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"query-streamer/internal/api"
	"query-streamer/internal/config"
	"query-streamer/internal/driver"
	"query-streamer/internal/metrics"
	"query-streamer/internal/middleware"
	"query-streamer/internal/queries"
	"query-streamer/internal/storage"
	"query-streamer/internal/transport"
	"query-streamer/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.AppEnv == "development" {
		level = slog.LevelDebug
	}
	logger := slog.New(middleware.NewContextHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
	slog.SetDefault(logger)

	slog.Info("starting query streamer", "env", cfg.AppEnv, "driver", cfg.DBDriver, "max_conn", cfg.MaxConn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Databases
	db, err := driver.Open(cfg.DBDriver, cfg.DatabaseURL, cfg.MaxConn)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.Ping(pingCtx)
	cancel()
	if err != nil {
		slog.Error("database unreachable", "driver", db.Name(), "error", err)
		os.Exit(1)
	}
	slog.Info("database connected", "driver", db.Name())

	var docs *driver.MongoDriver
	if cfg.MongoURI != "" {
		docs, err = driver.NewMongoDriver(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MaxConn)
		if err != nil {
			slog.Error("failed to connect to mongo", "error", err)
			os.Exit(1)
		}
		defer docs.Close()
		slog.Info("document store enabled", "database", cfg.MongoDatabase)
	}

	opts := cfg.StreamOptions()
	opts.Observer = metrics.StreamObserver{}
	catalog := queries.NewCatalog(db, docs, opts)

	// 2. Export workers
	store, err := newStorage(cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "type", cfg.StorageType, "error", err)
		os.Exit(1)
	}
	pool := worker.NewPool(cfg.WorkerCount, cfg.ExportDBConcurrency, catalog, store, cfg.Compression)
	pool.Start()
	defer pool.Stop()

	// 3. Routes & middleware
	handler := api.NewHandler(catalog, pool, transport.NewUpgrader(cfg.AllowedOrigins), cfg.DefaultTimeout)

	root := http.NewServeMux()
	root.Handle("GET /metrics", promhttp.Handler())
	root.HandleFunc("GET /healthz", handler.HandleHealth)
	root.Handle("/", middleware.Chain(handler.Routes(),
		middleware.CORS(cfg.AllowedOrigins, cfg.AppEnv),
		middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		middleware.Auth(cfg.APISecret),
	))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware.Chain(root, middleware.RequestLogger, metrics.Middleware),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("listening", "addr", "http://"+cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
	}
}

func newStorage(cfg *config.Config) (storage.Provider, error) {
	if cfg.StorageType == "s3" {
		if cfg.S3Bucket == "" {
			return nil, errors.New("S3_BUCKET is required for s3 storage")
		}
		client := storage.NewS3Client(storage.S3Config{
			Region:    cfg.AWSRegion,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
		})
		return storage.NewS3Provider(client, cfg.S3Bucket), nil
	}
	return storage.NewLocalProvider(cfg.LocalStoragePath)
}
