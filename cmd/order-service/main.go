package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/orderflow/internal/config"
	"github.com/dmehra2102/orderflow/internal/order/application"
	"github.com/dmehra2102/orderflow/internal/order/domain"
	orderhttp "github.com/dmehra2102/orderflow/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/orderflow/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/orderflow/internal/order/infrastructure/postgres"
	paymentapp "github.com/dmehra2102/orderflow/internal/payment/application"
	"github.com/dmehra2102/orderflow/pkg/idempotency"
	"github.com/dmehra2102/orderflow/pkg/logging"
	"github.com/dmehra2102/orderflow/pkg/metrics"
	"github.com/dmehra2102/orderflow/pkg/outbox"
	"github.com/dmehra2102/orderflow/pkg/shutdown"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

func main() {
	cfg, err := config.Load("order-service", os.Args[1:])
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(2)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("order-service stopped", "err", err)
		os.Exit(1)
	}
	log.Info("order-service shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	tp, err := tracing.Init(ctx, "order-service", cfg.OTLPEndpoint, log)
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("order_service", reg)

	// Core wiring
	repo := orderpg.NewRepository(log, pool)
	numbers := domain.NewNumberGenerator(orderpg.NewSequence(log, pool), nil)
	svc := application.NewService(log, repo, numbers, paymentapp.NewStatusPolicy())

	opts := []orderhttp.Option{
		orderhttp.WithMetrics(m, reg),
		orderhttp.WithHealth(pool),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		opts = append(opts, orderhttp.WithIdempotency(idempotency.NewStore(rdb, cfg.IdempotencyTTL)))
	} else {
		log.Warn("REDIS_ADDR is empty, Idempotency-Key is ignored")
	}
	handler := orderhttp.NewHandler(log, svc, domain.NewRedirectURLs(cfg.PaymentBaseURL), opts...)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Outbox relay
	writer := orderkafka.NewWriter(log, cfg.KafkaBrokers)
	defer func() {
		published := writer.Published()
		if err := writer.Close(); err != nil {
			log.Error("kafka writer close", "err", err)
		}
		log.Info("kafka writer closed", "published", published)
	}()
	relay := outbox.NewRelay(log,
		orderpg.NewOutboxStore(log, pool),
		outbox.NewDispatcher(log, writer, cfg.OrderEventsTopic),
		"order-service-"+uuid.NewString(),
		outbox.WithInterval(cfg.RelayInterval),
		outbox.WithBatchSize(cfg.RelayBatchSize),
		outbox.WithCounters(m.OutboxPublished, m.OutboxFailed),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
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
