package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"example.com/steprelay/internal/api"
	"example.com/steprelay/internal/auth"
	"example.com/steprelay/internal/config"
	"example.com/steprelay/internal/domain"
	"example.com/steprelay/internal/logging"
	"example.com/steprelay/internal/ocr"
	"example.com/steprelay/internal/outbox"
	"example.com/steprelay/internal/persistence/memory"
	persistence "example.com/steprelay/internal/persistence/postgres"
	httptransport "example.com/steprelay/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		users      domain.UserRepository
		teams      domain.TeamRepository
		records    domain.StepRecordRepository
		dispatcher *outbox.Dispatcher
	)

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		repo := persistence.NewRepository(pool)
		users, teams, records = repo, repo, repo

		producer := outbox.NewKafkaProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.Kafka.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(pool, producer, registry, logger, cfg.Outbox.PollInterval, cfg.Outbox.BatchSize)
		go dispatcher.Start(ctx)
	} else {
		logger.Warn("no postgres url configured, using in-memory store")
		store := memory.NewStore()
		users, teams, records = store, store, store
	}

	recognizer := ocr.NewClient(cfg.OCR.InvokeURL, cfg.OCR.SecretKey, logger)
	loc := time.FixedZone("challenge", cfg.Steps.TZOffsetHours*3600)
	service := domain.NewService(users, teams, records, recognizer, loc, cfg.Steps.TeamCapacity)

	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(
		auth.Config{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer},
		func(r *http.Request) bool {
			return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
		},
	)

	chain := authMiddleware.Wrap(mux)
	chain = httptransport.CORS("http://localhost:5173", chain)
	chain = httptransport.RequestLogger(logger, chain)

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.Server.Address,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}, chain)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("steprelay listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
