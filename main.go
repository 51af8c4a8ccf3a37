package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"studyai/internal/api"
	"studyai/internal/backend"
	"studyai/internal/config"
	"studyai/internal/logger"
	"studyai/internal/metrics"
	"studyai/internal/redis"
	"studyai/internal/session"
	"studyai/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load(os.Getenv("STUDYAI_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logg, err := logger.New(cfg.BasicConfig.LogMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := backend.NewSet(ctx, cfg, nil)
	if err != nil {
		logg.Fatal("init backend", "backend", cfg.Backend, "error", err)
	}
	summarizer := backends.Summarizer
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			logg.Fatal("create redis client", "error", err)
		}
		defer rdb.Close()
		cached := backend.NewCachedSummarizer(backends.Summarizer, rdb, time.Duration(cfg.Redis.SummaryTTLMinutes)*time.Minute)
		cached.OnError = func(op string, err error) {
			logg.Warn("summary cache error", "op", op, "error", err)
		}
		summarizer = cached
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	dispatcher := worker.NewDispatcher(cfg.Worker, logg.With("component", "worker"))
	defer dispatcher.Close()

	store := session.NewStore(session.Deps{
		Ingestor:       backends.Ingestor,
		Answerer:       backends.Answerer,
		Summarizer:     summarizer,
		Executor:       dispatcher,
		Logger:         logg,
		Metrics:        m,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}, cfg.BasicConfig.SessionIdleTTL())
	store.StartSweeper(ctx, cfg.BasicConfig.SweepInterval())
	metrics.RegisterSessionGauge(registry, store.Len)

	if cfg.BasicConfig.LogMode == "prod" || cfg.BasicConfig.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), api.AccessLog(logg), api.CORS(cfg.BasicConfig.AllowedOrigins))
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	handlers := api.NewHandler(store, api.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		DateLayout:     cfg.BasicConfig.DateLayout,
		RateLimit:      cfg.RateLimit,
		Logger:         logg,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logg.Info("server listening", "addr", srv.Addr, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("server stopped", "error", err)
		}
	}()

	<-ctx.Done()
	// ending sessions closes their event streams so Shutdown can drain
	store.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server shutdown", "error", err)
	}
	logg.Info("server stopped")
}
