package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/orderflow/internal/config"
	orderpg "github.com/dmehra2102/orderflow/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/orderflow/internal/payment/application"
	paymentkafka "github.com/dmehra2102/orderflow/internal/payment/infrastructure/kafka"
	paymentpg "github.com/dmehra2102/orderflow/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/orderflow/pkg/idempotency"
	"github.com/dmehra2102/orderflow/pkg/logging"
	"github.com/dmehra2102/orderflow/pkg/metrics"
	"github.com/dmehra2102/orderflow/pkg/shutdown"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

func main() {
	cfg, err := config.Load("payment-service", os.Args[1:])
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(2)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("payment-service stopped", "err", err)
		os.Exit(1)
	}
	log.Info("payment-service shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	tp, err := tracing.Init(ctx, "payment-service", cfg.OTLPEndpoint, log)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := orderpg.Migrate(ctx, pool); err != nil {
		return err
	}
	if err := paymentpg.Migrate(ctx, pool); err != nil {
		return err
	}

	if cfg.RedisAddr == "" {
		return errors.New("REDIS_ADDR is required for payment event deduplication")
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	reg := prometheus.NewRegistry()
	m := metrics.New("payment_service", reg)

	svc := application.NewService(log, orderpg.NewRepository(log, pool), paymentpg.NewRepository(log, pool))
	reader := paymentkafka.NewReader(cfg.KafkaBrokers, cfg.PaymentEventsTopic, cfg.PaymentConsumerGroup)
	consumer := paymentkafka.NewConsumer(log, reader, svc, idem, func(result string) {
		m.PaymentEvents.WithLabelValues(result).Inc()
	})

	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler(reg))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(r.Context()); err != nil {
			log.Warn("health check failed", "err", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: r, ReadTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("payment consumer started", "topic", cfg.PaymentEventsTopic, "group", cfg.PaymentConsumerGroup)
		return consumer.Run(gctx)
	})
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
