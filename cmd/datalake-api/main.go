package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/segmentio/kafka-go"

	"datavant-style-exchange/datalake/internal/config"
	"datavant-style-exchange/datalake/internal/datalake"
	"datavant-style-exchange/datalake/internal/httpapi"
	"datavant-style-exchange/datalake/internal/metrics"
	"datavant-style-exchange/datalake/internal/objectstore"
	"datavant-style-exchange/datalake/internal/outbox"
)

const (
	readTimeout  = 30 * time.Second
	writeTimeout = 2 * time.Minute
	idleTimeout  = 60 * time.Second
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := objectstore.NewClient(objectstore.Config{
		Namespace:       cfg.StorageNamespace,
		Region:          cfg.StorageRegion,
		Domain:          cfg.StorageDomain,
		DatalakeBucket:  cfg.DatalakeBucket,
		ReferenceBucket: cfg.ReferenceBucket,
	}, logger, func() (objectstore.Backend, error) {
		return objectstore.NewMinioBackend(objectstore.MinioOptions{
			Endpoint:  cfg.StorageEndpoint,
			AccessKey: cfg.StorageAccessKey,
			SecretKey: cfg.StorageSecretKey,
			Region:    cfg.StorageRegion,
			Secure:    cfg.StorageSecure,
		})
	})

	opts := datalake.Options{
		PoolSize:    cfg.PublishPoolMax,
		ItemTimeout: cfg.PublishItemTimeout,
	}

	var db *sql.DB
	if cfg.OutboxEnabled() {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		dbCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := db.PingContext(dbCtx); err != nil {
			cancel()
			logger.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		cancel()

		// Topic comes from each outbox row, so the writer must not set one.
		kafkaWriter := &kafka.Writer{
			Addr:     kafka.TCP(cfg.KafkaBrokers...),
			Balancer: &kafka.Hash{},
		}
		defer func() {
			_ = kafkaWriter.Close()
		}()

		opts.Notifier = outbox.NewRecorder(db, cfg.TopicObjectPublished)
		relay := outbox.NewPublisher(db, kafkaWriter, logger, metrics.OutboxPublishFailures.Inc)
		go relay.Run(ctx)
	} else {
		logger.Info("outbox disabled, published objects will not be announced")
	}

	publisher := datalake.NewPublisher(store, logger, opts)
	retriever := datalake.NewRetriever(store)
	handler := httpapi.New(cfg, logger, publisher, retriever)

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler.Routes(metrics.Handler(db)),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	go func() {
		logger.Info("datalake api listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
