// foreman-scheduler — сервис планировщика worker'ов.
//
// Конфигурация: YAML файл из FOREMAN_CONFIG (опционально) и переменные окружения
// (FOREMAN_PORT, STORE_BACKEND, DB_URL, RABBITMQ_URL, WORKER_TIMEOUT, ...).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Foreman/internal/api"
	"github.com/shaiso/Foreman/internal/clock"
	"github.com/shaiso/Foreman/internal/config"
	"github.com/shaiso/Foreman/internal/intake"
	"github.com/shaiso/Foreman/internal/liveness"
	"github.com/shaiso/Foreman/internal/mq"
	"github.com/shaiso/Foreman/internal/opstate"
	"github.com/shaiso/Foreman/internal/platform"
	"github.com/shaiso/Foreman/internal/repo"
	"github.com/shaiso/Foreman/internal/scheduler"
	"github.com/shaiso/Foreman/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting foreman-scheduler")

	if err := run(logger); err != nil {
		logger.Error("foreman-scheduler failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load(os.Getenv("FOREMAN_CONFIG"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c := clock.Real{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewSchedulerMetrics(reg)

	// Operation State Manager
	var store opstate.Manager
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()

		opRepo := repo.NewOperationRepo(pool, c)
		if err := opRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		store = opRepo
		logger.Info("using postgres operation store")
	default:
		store = opstate.NewMemoryStore(c)
		logger.Info("using in-memory operation store")
	}

	// RabbitMQ (опционально): события и keep-alive intake
	var conn *mq.Connection
	var events scheduler.EventSink
	if cfg.UsesRabbitMQ() {
		conn, err = mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Logger: logger})
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer conn.Close()

		if err := mq.SetupTopology(ctx, conn); err != nil {
			return fmt.Errorf("setup topology: %w", err)
		}
		events = mq.NewEventSink(mq.NewPublisher(conn, logger))
	}

	kinds, err := cfg.PropertyKinds()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{
		Store:         store,
		Properties:    platform.NewPropertyManager(kinds),
		Clock:         c,
		Events:        events,
		Metrics:       metrics,
		WorkerTimeout: cfg.WorkerTimeout,
		MatchInterval: cfg.MatchInterval,
		BatchSize:     cfg.MatchBatchSize,
		MaxRequeues:   cfg.MaxRequeues,
		Logger:        logger,
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	sweeper, err := liveness.New(liveness.Config{
		Evictor:  sched,
		Clock:    c,
		Schedule: cfg.LivenessSchedule,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	if err := sweeper.Start(ctx); err != nil {
		return err
	}
	defer sweeper.Stop()

	if conn != nil {
		in := intake.New(intake.Config{Scheduler: sched, Conn: conn, Logger: logger})
		if err := in.Start(ctx); err != nil {
			return err
		}
		defer in.Stop()
	}

	// HTTP
	handler := api.NewHandler(api.Config{
		Scheduler: sched,
		Actions:   sched,
		Store:     store,
		Clock:     c,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}
