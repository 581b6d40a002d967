// cmd/soknad-worker/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"soknad-workers/internal/common/aws"
	"soknad-workers/internal/common/bus"
	"soknad-workers/internal/common/config"
	"soknad-workers/internal/common/database"
	"soknad-workers/internal/common/logger"
	"soknad-workers/internal/common/metrics"
	"soknad-workers/internal/common/observability"
	"soknad-workers/internal/common/registry"
	"soknad-workers/internal/correlation"
	"soknad-workers/internal/notifier"
	"soknad-workers/internal/statemachine"
	"soknad-workers/internal/store"

	sa "soknad-workers/internal/workers/application/submit-application"
	ur "soknad-workers/internal/workers/application/user-response"
	co "soknad-workers/internal/workers/case/case-opened"
	dm "soknad-workers/internal/workers/case/decision-made"
	ol "soknad-workers/internal/workers/fulfillment/order-line"
	ea "soknad-workers/internal/workers/maintenance/expire-applications"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting soknad worker...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	obs, err := observability.New(cfg.App.Name, reg)
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional) ---
	var sink correlation.InvestigationSink
	if cfg.Database.Elasticsearch.Enabled() {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 5, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Warn("elasticsearch unavailable, correlation misses are only logged", zap.Error(err))
		} else {
			sink = correlation.NewElasticsearchSink(esClient.Client, cfg.Database.Elasticsearch.InvestigationIndex)
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	st := store.New(pg.DB, log)
	if err := st.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("schema setup failed", zap.Error(err))
	}

	// --- Outbound publisher ---
	var publisher bus.Publisher
	switch cfg.Bus.Publisher {
	case "sns":
		snsPublisher, err := aws.NewSNSPublisher(ctx, cfg.Bus.SNS.Region, cfg.Bus.SNS.TopicARN)
		if err != nil {
			zapLog.Fatal("sns publisher setup failed", zap.Error(err))
		}
		publisher = snsPublisher
	default:
		publisher = bus.NewStreamPublisher(redis.Client, cfg.Bus.OutboundStream, cfg.Bus.MaxLen)
	}

	machine := statemachine.New(st, log, m)
	n := notifier.New(publisher, log, m)
	verifier := registry.NewVerifier(cfg.Registry, redis.Client, log, m)
	engine := correlation.NewEngine(st, verifier, sink, cfg.Correlation.DenyList, log, m)

	// --- Register handlers ---
	router := bus.NewRouter(log, m, obs)

	if cfg.Workers[sa.TaskType].Enabled {
		handler := sa.NewHandler(
			&sa.Config{Timeout: config.GetDuration(cfg.Workers[sa.TaskType].Timeout)},
			st, n, log,
		)
		router.Register(sa.TaskType, handler, config.GetDuration(cfg.Workers[sa.TaskType].Timeout))
	}

	if cfg.Workers[ur.TaskType].Enabled {
		handler := ur.NewHandler(
			&ur.Config{Timeout: config.GetDuration(cfg.Workers[ur.TaskType].Timeout)},
			machine, n, log,
		)
		router.Register(ur.TaskType, handler, config.GetDuration(cfg.Workers[ur.TaskType].Timeout))
	}

	if cfg.Workers[co.TaskType].Enabled {
		handler := co.NewHandler(
			&co.Config{Timeout: config.GetDuration(cfg.Workers[co.TaskType].Timeout)},
			st, machine, n, log,
		)
		router.Register(co.TaskType, handler, config.GetDuration(cfg.Workers[co.TaskType].Timeout))
	}

	if cfg.Workers[dm.TaskType].Enabled {
		handler := dm.NewHandler(
			&dm.Config{Timeout: config.GetDuration(cfg.Workers[dm.TaskType].Timeout)},
			st, machine, n, log,
		)
		router.Register(dm.TaskType, handler, config.GetDuration(cfg.Workers[dm.TaskType].Timeout))
	}

	if cfg.Workers[ol.TaskType].Enabled {
		handler := ol.NewHandler(
			&ol.Config{
				Timeout:                config.GetDuration(cfg.Workers[ol.TaskType].Timeout),
				DebounceWindow:         time.Duration(cfg.Correlation.DebounceHours) * time.Hour,
				SubcomponentCategories: cfg.Correlation.SubcomponentCategories,
			},
			st, engine, machine, n, log,
		)
		router.Register(ol.TaskType, handler, config.GetDuration(cfg.Workers[ol.TaskType].Timeout))
	}

	consumer := bus.NewStreamConsumer(redis.Client, cfg.Bus, router, log, m)
	consumerDone := make(chan error, 1)
	go func() {
		consumerDone <- consumer.Run(ctx)
	}()

	if cfg.Expiry.Enabled {
		expiryCfg, err := ea.LoadConfig(cfg.Expiry)
		if err != nil {
			zapLog.Fatal("expiry config invalid", zap.Error(err))
		}
		sweep := ea.NewHandler(expiryCfg, st, machine, n, log, m)
		go func() {
			if err := sweep.Schedule(ctx); err != nil {
				zapLog.Error("expiry scheduler stopped", zap.Error(err))
			}
		}()
	}

	// --- Health check server ---
	server := newServer(cfg.Server.Address, reg, []readinessCheck{
		{name: "postgres", ping: pg.Ping},
		{name: "redis", ping: redis.Ping},
	})
	go func() {
		zapLog.Info("Starting health check server", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("health server failed", zap.Error(err))
		}
	}()

	zapLog.Info("All handlers registered", zap.Strings("taskTypes", router.TaskTypes()))

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		zapLog.Info("Shutdown signal received, stopping consumers...")
	case err := <-consumerDone:
		zapLog.Error("consumer stopped unexpectedly", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("health server shutdown failed", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Warn("observability shutdown failed", zap.Error(err))
	}

	zapLog.Info("Soknad worker stopped")
}
