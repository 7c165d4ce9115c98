package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	auditkafka "sigedoc/internal/audit/kafka"

	"sigedoc/internal/audit"
	"sigedoc/internal/document/handler"
	docmetrics "sigedoc/internal/document/metrics"
	"sigedoc/internal/document/service"
	"sigedoc/internal/document/store/memory"
	"sigedoc/internal/document/store/postgres"
	"sigedoc/internal/download"
	"sigedoc/internal/jwtauth"
	"sigedoc/internal/permission"
	"sigedoc/internal/platform/config"
	"sigedoc/internal/platform/httpserver"
	"sigedoc/internal/platform/logger"
	platformredis "sigedoc/internal/platform/redis"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	oracle := permission.NewStaticOracle()
	metrics := docmetrics.New()
	jwtSvc := jwtauth.NewService(cfg.JWTSigningKey, "sigedoc", "sigedoc-api")

	// Remote document store: PostgreSQL when configured, otherwise the
	// in-memory store seeded with development data.
	var store service.RemoteStore
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Error("schema apply failed", "error", err)
			os.Exit(1)
		}
		store = postgres.New(db)
	} else {
		mem := memory.New()
		seedDevData(ctx, log, mem, jwtSvc)
		store = mem
	}

	// Audit trail: Kafka when brokers are configured, in-memory otherwise.
	var auditor service.AuditPublisher
	var kafkaPublisher *auditkafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		opts := []auditkafka.Option{auditkafka.WithLogger(log)}
		if cfg.AuditTopic != "" {
			opts = append(opts, auditkafka.WithTopic(cfg.AuditTopic))
		}
		p, err := auditkafka.New(cfg.KafkaBrokers, opts...)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		kafkaPublisher = p
		auditor = p
	} else {
		auditor = audit.NewPublisher(audit.NewInMemoryStore())
	}

	// Download tokens: Redis when configured, in-memory otherwise.
	var tokens download.TokenStore = download.NewMemoryStore()
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		tokens = download.NewRedisStore(redisClient.Client)
	}

	sync := service.New(store, oracle,
		service.WithLogger(log),
		service.WithMetrics(metrics),
		service.WithAuditPublisher(auditor),
	)
	downloads := download.New(tokens, oracle,
		download.WithLogger(log),
		download.WithAuditPublisher(auditor),
		download.WithTTL(cfg.DownloadTTL),
	)

	h := handler.New(sync, store, downloads, oracle, jwtSvc, log,
		handler.WithMetrics(metrics),
		handler.WithAuditPublisher(auditor),
	)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(r.Context()); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	h.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting sigedoc", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if kafkaPublisher != nil {
		if err := kafkaPublisher.Flush(shutdownCtx); err != nil {
			log.Warn("audit flush incomplete", "error", err)
		}
		kafkaPublisher.Close()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
