package bootstrap

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	listingledger "bazaar/contexts/marketplace/listing-ledger"
	"bazaar/contexts/marketplace/listing-ledger/adapters/memory"
	postgresadapter "bazaar/contexts/marketplace/listing-ledger/adapters/postgres"
	workerapp "bazaar/contexts/marketplace/listing-ledger/application/workers"
	"bazaar/contexts/marketplace/listing-ledger/ports"
	"bazaar/internal/platform/config"
	"bazaar/internal/platform/db"
	"bazaar/internal/platform/httpserver"
	"bazaar/internal/platform/messaging"
	"bazaar/internal/platform/metrics"
	"bazaar/internal/platform/ratelimiter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server   *httpserver.Server
	postgres *db.Postgres
	// relay is set only for the in-memory runtime, where no separate worker
	// process can see the outbox.
	relay        *workerapp.OutboxRelay
	activity     *workerapp.ListingActivityConsumer
	publisher    io.Closer
	pollInterval time.Duration
	logger       *slog.Logger
}

type WorkerApp struct {
	postgres     *db.Postgres
	outboxRelay  workerapp.OutboxRelay
	activity     *workerapp.ListingActivityConsumer
	publisher    io.Closer
	pollInterval time.Duration
	logger       *slog.Logger
}

type eventPublisher interface {
	ports.EventPublisher
	io.Closer
}

func BuildAPI() (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return BuildAPIWithConfig(context.Background(), cfg)
}

func BuildAPIWithConfig(ctx context.Context, cfg config.Config) (*APIApp, error) {
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	app := &APIApp{
		pollInterval: cfg.OutboxPoll,
		logger:       logger,
	}

	var module listingledger.Module
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		logger.Warn("POSTGRES_DSN not set, using in-memory ledger",
			"event", "bootstrap_memory_store_selected",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		store := memory.NewStore(logger)
		module = listingledger.NewModule(listingledger.Dependencies{
			Listings:       store,
			Balances:       store,
			Idempotency:    store,
			Clock:          store,
			IDGenerator:    store,
			IdempotencyTTL: cfg.IdempotencyTTL,
			Metrics:        recorder,
			Logger:         logger,
		})
		module.Store = store

		publisher, err := buildPublisher(cfg, logger)
		if err != nil {
			return nil, err
		}
		app.publisher = publisher
		app.activity = activityConsumer(cfg, publisher, logger)
		app.relay = &workerapp.OutboxRelay{
			Outbox:    store,
			Publisher: publisher,
			Clock:     store,
			Topic:     cfg.EventTopic,
			BatchSize: cfg.OutboxBatch,
			Metrics:   recorder,
			Logger:    logger,
		}
	} else {
		pg, repo, err := connectLedger(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		app.postgres = pg
		module = listingledger.NewModule(listingledger.Dependencies{
			Listings:       repo,
			Balances:       repo,
			Idempotency:    repo,
			Clock:          postgresadapter.SystemClock{},
			IDGenerator:    postgresadapter.UUIDGenerator{},
			IdempotencyTTL: cfg.IdempotencyTTL,
			Metrics:        recorder,
			Logger:         logger,
		})
	}

	opts := httpserver.Options{
		Addr:          normalizeAddr(cfg.HTTPPort),
		Limiter:       ratelimiter.New(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute),
		EnableSwagger: cfg.EnableSwagger,
	}
	if cfg.EnableMetrics {
		opts.MetricsGatherer = registry
	}
	app.server = httpserver.New(module, logger, opts)
	return app, nil
}

func BuildWorker() (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, repo, err := connectLedger(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	publisher, err := buildPublisher(cfg, logger)
	if err != nil {
		_ = pg.Close()
		return nil, err
	}

	return &WorkerApp{
		postgres: pg,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    repo,
			Publisher: publisher,
			Clock:     postgresadapter.SystemClock{},
			Topic:     cfg.EventTopic,
			BatchSize: cfg.OutboxBatch,
			Metrics:   metrics.New(prometheus.DefaultRegisterer),
			Logger:    logger,
		},
		activity:     activityConsumer(cfg, publisher, logger),
		publisher:    publisher,
		pollInterval: cfg.OutboxPoll,
		logger:       logger,
	}, nil
}

// Handler exposes the routed HTTP surface for in-process tests.
func (a *APIApp) Handler() http.Handler {
	return a.server.Handler()
}

// Run serves HTTP until ctx is cancelled. In the in-memory runtime the outbox
// relay runs alongside the server.
func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
			"embedded_relay", a.relay != nil,
		)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	// Subscribe before the relay runs so the first batch is observed.
	if a.activity != nil {
		if err := a.activity.Start(groupCtx); err != nil {
			return err
		}
	}
	group.Go(a.server.Start)
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	if a.relay != nil {
		relay := *a.relay
		group.Go(func() error {
			return pollRelay(groupCtx, relay, a.pollInterval)
		})
	}
	return group.Wait()
}

func (a *APIApp) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.postgres != nil {
		errs = append(errs, a.postgres.Close())
	}
	return errors.Join(errs...)
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)
	if w.activity != nil {
		if err := w.activity.Start(ctx); err != nil {
			return err
		}
	}
	return pollRelay(ctx, w.outboxRelay, w.pollInterval)
}

func (w *WorkerApp) Close() error {
	var errs []error
	if w.publisher != nil {
		errs = append(errs, w.publisher.Close())
	}
	if w.postgres != nil {
		errs = append(errs, w.postgres.Close())
	}
	return errors.Join(errs...)
}

// pollRelay drains the outbox on every tick. Publish failures are retried on
// the next tick rather than stopping the process.
func pollRelay(ctx context.Context, relay workerapp.OutboxRelay, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := relay.RunOnce(ctx); err != nil && ctx.Err() == nil && relay.Logger != nil {
			relay.Logger.Warn("outbox relay cycle failed, retrying next tick",
				"event", "bootstrap_outbox_relay_retry",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func connectLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (*db.Postgres, *postgresadapter.Repository, error) {
	pg, err := db.Connect(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	repo := postgresadapter.NewRepository(pg.DB, logger)
	if err := pg.Migrate(ctx, repo); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	return pg, repo, nil
}

func buildPublisher(cfg config.Config, logger *slog.Logger) (eventPublisher, error) {
	switch cfg.EventBroker {
	case config.BrokerKafka:
		return messaging.NewKafkaPublisher(cfg.KafkaBrokers, logger), nil
	case config.BrokerRabbitMQ:
		return messaging.NewRabbitPublisher(cfg.RabbitMQURL, logger)
	default:
		return messaging.NewBus(logger), nil
	}
}

// activityConsumer is only built for publishers that can also be read back,
// which is the in-process bus.
func activityConsumer(cfg config.Config, publisher eventPublisher, logger *slog.Logger) *workerapp.ListingActivityConsumer {
	subscriber, ok := publisher.(ports.EventSubscriber)
	if !ok {
		return nil
	}
	return &workerapp.ListingActivityConsumer{
		Subscriber: subscriber,
		Topic:      cfg.EventTopic,
		Logger:     logger,
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
