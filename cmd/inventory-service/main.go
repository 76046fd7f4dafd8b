package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/bookstore/internal/config"
	"github.com/dmehra2102/bookstore/internal/inventory/application"
	"github.com/dmehra2102/bookstore/internal/inventory/infrastructure/cache"
	invgrpc "github.com/dmehra2102/bookstore/internal/inventory/infrastructure/grpc"
	invhttp "github.com/dmehra2102/bookstore/internal/inventory/infrastructure/http"
	invkafka "github.com/dmehra2102/bookstore/internal/inventory/infrastructure/kafka"
	invpg "github.com/dmehra2102/bookstore/internal/inventory/infrastructure/postgres"
	"github.com/dmehra2102/bookstore/pkg/auth"
	"github.com/dmehra2102/bookstore/pkg/discovery"
	"github.com/dmehra2102/bookstore/pkg/eventbus"
	"github.com/dmehra2102/bookstore/pkg/events"
	"github.com/dmehra2102/bookstore/pkg/httpx"
	"github.com/dmehra2102/bookstore/pkg/idempotency"
	"github.com/dmehra2102/bookstore/pkg/logging"
	"github.com/dmehra2102/bookstore/pkg/metrics"
	"github.com/dmehra2102/bookstore/pkg/outbox"
	"github.com/dmehra2102/bookstore/pkg/shutdown"
	"github.com/dmehra2102/bookstore/pkg/tracing"
)

func main() {
	cfg, err := config.LoadInventory()
	if err != nil {
		logging.New("book-inventory-service", "info").Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Service, cfg.LogLevel)
	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Service, cfg.OTEL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := invpg.EnsureSchema(ctx, pool); err != nil {
		log.Error("schema failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, "inventory")
	consumerMetrics := metrics.NewConsumerMetrics(reg, "inventory")

	svc := application.NewService(log, invpg.NewRepository(log, pool), cache.NewBookCache(log, rdb, cfg.BookCacheTTL))
	handler := invhttp.NewHandler(log, svc, cfg.LowStockThreshold)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, httpx.RequestLogger(log), serverMetrics.Middleware)
	r.Get("/health", httpx.Health)
	r.Handle("/metrics", metrics.Handler(reg))
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(auth.NewVerifier(cfg.JWTSecret), log))
		handler.Register(r)
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	health := invgrpc.NewServer(log)
	if _, err := invgrpc.Run(cfg.GRPCAddr, health); err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}

	instanceID := cfg.Service + "-" + uuid.NewString()[:8]
	writer := eventbus.NewWriter(cfg.Kafka)
	relay := outbox.NewRelay(log, outbox.NewPGStore(log, pool), outbox.NewDispatcher(log, writer), instanceID)

	consumer := eventbus.NewConsumer(log,
		eventbus.NewReader(cfg.Kafka, cfg.ConsumerGroup, events.TopicOrders),
		writer, cfg.ConsumerGroup,
		eventbus.WithIdempotency(idempotency.NewStore(rdb, cfg.IdempotencyTTL)),
		eventbus.WithMetrics(consumerMetrics),
		eventbus.WithRetry(cfg.ConsumerRetry, 200*time.Millisecond),
	)
	invkafka.NewListener(log, svc, consumerMetrics).Register(consumer)

	// Both write to the shared Kafka writer; it is closed only after they return.
	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped", "err", err)
		}
	}()
	go func() {
		defer workers.Done()
		health.SetServing(true)
		defer health.SetServing(false)
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	var consul *discovery.ConsulClient
	if cfg.ConsulAddr != "" {
		if consul, err = discovery.NewConsulClient(cfg.ConsulAddr, log); err != nil {
			log.Warn("consul unavailable, skipping registration", "err", err)
		} else if err := consul.Register(discovery.ServiceConfig{
			Name:    cfg.Service,
			ID:      instanceID,
			Address: cfg.AdvertiseHost,
			Port:    config.Port(cfg.HTTPAddr),
			Tags:    []string{"inventory", "http"},
		}); err != nil {
			log.Warn("consul registration failed", "err", err)
		}
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdown.Drain(log, 15*time.Second,
		shutdown.Step{Name: "consul", Fn: func(context.Context) error {
			if consul == nil {
				return nil
			}
			return consul.Deregister(instanceID)
		}},
		shutdown.Step{Name: "grpc", Fn: func(context.Context) error { health.Stop(); return nil }},
		shutdown.Step{Name: "http", Fn: srv.Shutdown},
		shutdown.Step{Name: "relay and consumer", Fn: shutdown.Wait(&workers)},
		shutdown.Step{Name: "kafka writer", Fn: func(context.Context) error { return writer.Close() }},
		shutdown.Step{Name: "tracer", Fn: tp.Shutdown},
	)
	log.Info("inventory-service shutdown complete")
}
