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

	"golang.org/x/sync/errgroup"

	"catcher/internal/audit"
	"catcher/internal/auth"
	"catcher/internal/feed"
	itemstore "catcher/internal/item/store"
	"catcher/internal/payment/paystack"
	"catcher/internal/payment/workflow"
	"catcher/internal/platform/config"
	"catcher/internal/platform/httpserver"
	"catcher/internal/platform/kafka"
	"catcher/internal/platform/logger"
	"catcher/internal/platform/metrics"
	"catcher/internal/platform/postgres"
	"catcher/internal/platform/redis"
	"catcher/internal/registry"
	"catcher/internal/search"
	httptransport "catcher/internal/transport/http"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		return err
	}

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	} else {
		log.Warn("redis not configured, finalize replay falls back to store lookups")
	}

	producer, err := kafka.NewProducer(ctx, cfg.KafkaBrokers, cfg.KafkaAuditTopic)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
	} else {
		log.Warn("kafka not configured, audit events stay in the outbox")
	}

	m := metrics.New()

	items := itemstore.NewPostgres(db)
	auditStore := audit.NewPostgresStore(db)

	hub := feed.NewHub()
	listener := feed.NewListener(cfg.DatabaseURL, hub, log, m)
	sessions := registry.NewManager(items, hub, log)

	gateway := paystack.New(cfg.Paystack)
	wf, err := workflow.New(gateway, items, auditStore, log,
		cfg.Paystack.AmountKobo, cfg.Paystack.CallbackURL,
		workflow.WithReferenceCache(workflow.NewReferenceCache(redisClient)),
		workflow.WithDB(db),
		workflow.WithMetrics(m),
	)
	if err != nil {
		return err
	}

	validator := auth.NewValidator(cfg.JWTSigningKey)
	router := httptransport.NewRouter(httptransport.Handlers{
		Items:    httptransport.NewItemsHandler(sessions, items, auditStore, log),
		Search:   httptransport.NewSearchHandler(search.NewEngine(items, log, m)),
		Payments: httptransport.NewPaymentHandler(wf, log),
		WS:       httptransport.NewWSHandler(sessions, hub, log),
	}, validator, log, db)

	server := httpserver.New(cfg.Addr, router)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return listener.Run(gCtx)
	})

	if producer != nil {
		worker := audit.NewWorker(db, producer, cfg.KafkaAuditTopic, log)
		g.Go(func() error {
			return worker.Run(gCtx)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Info("server stopped")
	return err
}
