package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/sloguard/internal/alerting"
	"github.com/xela07ax/sloguard/internal/console/handler"
	"github.com/xela07ax/sloguard/internal/console/server"
	"github.com/xela07ax/sloguard/internal/domain"
	"github.com/xela07ax/sloguard/internal/engine"
	"github.com/xela07ax/sloguard/internal/infra"
	"github.com/xela07ax/sloguard/internal/infra/auth"
	"github.com/xela07ax/sloguard/internal/repository/postgres"
	"github.com/xela07ax/sloguard/internal/slo"
	"github.com/xela07ax/sloguard/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func serve(ctx context.Context, cfg *infra.Config) error {
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return cliError{code: exitConfig, err: err}
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При SIGTERM cancel() остановит слушателей и планировщик
	appCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 2. Инфраструктура и ресурсы (Postgres и Redis опциональны)
	var (
		pool    *pgxpool.Pool
		journal *store.Journal
		history engine.MeasurementHistory
		alerts  engine.AlertStore
	)
	if cfg.Database.URL != "" {
		pool, err = postgres.Open(appCtx, cfg.Database.URL, postgres.Options{MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(appCtx, pool); err != nil {
			return err
		}

		measurements := postgres.NewMeasurementRepo(pool)
		history = measurements
		alerts = postgres.NewAlertRepo(pool)

		// Теперь замеры полетят в базу пачками
		journal = store.NewJournal(measurements, store.JournalOptions{
			BufferSize:    cfg.Monitor.JournalBufferSize,
			BatchSize:     cfg.Monitor.JournalBatchSize,
			FlushInterval: cfg.Monitor.JournalFlushInterval,
			Retention:     cfg.Monitor.Retention(),
		}, logger)
		journal.Start()
		defer journal.Stop()
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(appCtx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis: ping failed: %w", err)
		}
	}

	// 3. Источник счетчиков
	var source engine.CounterSource
	switch cfg.Monitor.Source {
	case infra.SourcePostgres:
		source = postgres.NewCounterRepo(pool)
	default:
		source = engine.NewAccumulator(cfg.Monitor.BucketResolution, maxWindow(cfg.Targets))
	}

	// 4. Каналы оповещений
	notifier := buildNotifier(cfg, rdb, metrics, logger)

	// 5. Core
	health := engine.NewGRPCHealth()
	monitor, err := engine.NewMonitor(
		cfg.Targets,
		source,
		store.NewMetricStore(cfg.Monitor.Retention()),
		slo.NewCalculator(cfg.Monitor.TrendDeadband),
		alerting.NewSuppressor(cfg.Monitor.SuppressionWindow),
		notifier,
		engine.SystemClock{},
		logger,
		engine.Options{
			CollectTimeout: cfg.Monitor.CollectTimeout,
			NotifyTimeout:  cfg.Monitor.NotifyTimeout,
			MaxParallel:    cfg.Monitor.MaxParallel,
		},
	)
	if err != nil {
		return cliError{code: exitConfig, err: err}
	}
	monitor.WithMetrics(metrics).WithHealth(health)
	if alerts != nil {
		monitor.WithAlertStore(alerts)
	}
	if journal != nil {
		monitor.WithJournal(journal)
	}

	if err := monitor.Warmup(appCtx, history, cfg.Monitor.Retention()); err != nil {
		return err
	}

	scheduler := engine.NewScheduler(cfg.Monitor.Interval, engine.SystemClock{}, func(ctx context.Context) {
		if err := monitor.EvaluateOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("evaluation tick interrupted", zap.Error(err))
		}
	}, logger).WithMetrics(metrics)

	if rdb != nil {
		host, _ := os.Hostname()
		// lease чуть короче интервала, чтобы дрожание тиков не съедало следующий интервал
		ttl := cfg.Monitor.Interval - cfg.Monitor.Interval/10
		scheduler.WithLease(engine.NewRedisLease(rdb, infra.RedisKeyLockEvaluate, host, ttl))
		go monitor.ListenResolveSignals(appCtx, rdb, infra.RedisChanResolveSignal)
	}

	// 6. HTTP API
	api, err := buildConsole(cfg, monitor, reg, logger)
	if err != nil {
		return cliError{code: exitConfig, err: err}
	}
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var grpcSrv *grpc.Server
	if cfg.GRPC.Port > 0 {
		grpcSrv = grpc.NewServer()
		health.Register(grpcSrv)
	}

	scheduler.Start(appCtx)

	g, gctx := errgroup.WithContext(appCtx)
	g.Go(func() error {
		logger.Info("HTTP API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	if grpcSrv != nil {
		g.Go(func() error {
			lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
			if err != nil {
				return fmt.Errorf("grpc: failed to listen: %w", err)
			}
			logger.Info("gRPC health service started", zap.Int("port", cfg.GRPC.Port))
			return grpcSrv.Serve(lis)
		})
	}

	// 7. Graceful Shutdown
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("sloguard stopping...")

		scheduler.Stop()
		health.Shutdown()

		// Даем 5 секунд на завершение запросов
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if grpcSrv != nil {
			grpcSrv.GracefulStop()
		}
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("sloguard exited", zap.Error(err))
	return err
}

func buildNotifier(cfg *infra.Config, rdb *redis.Client, metrics *engine.Metrics, logger *zap.Logger) alerting.Notifier {
	fanout := alerting.NewFanout(alerting.Sink{Name: "log", Notifier: alerting.NewLogNotifier(logger)})

	for i, w := range cfg.Notifier.Webhooks {
		name := w.Name
		if name == "" {
			name = fmt.Sprintf("webhook-%d", i)
		}
		// Оборачиваем в Reliability (Rate Limit, Circuit Breaker, Retries)
		fanout.Add(alerting.Sink{
			Name: name,
			Notifier: alerting.NewReliableNotifier(
				alerting.NewWebhookNotifier(w.URL, w.Format, w.Timeout),
				alerting.ReliabilityOptions{Name: name, RatePerSec: w.RatePerSec, Burst: w.Burst, Attempts: w.Attempts},
				metrics.CircuitBreakerState.WithLabelValues(name),
			),
		})
	}

	if cfg.Notifier.RedisPublish && rdb != nil {
		fanout.Add(alerting.Sink{
			Name: "redis",
			Notifier: alerting.NewReliableNotifier(
				alerting.NewRedisNotifier(rdb, infra.RedisChanAlertEvents),
				alerting.ReliabilityOptions{Name: "redis"},
				metrics.CircuitBreakerState.WithLabelValues("redis"),
			),
		})
	}
	return fanout
}

func buildConsole(cfg *infra.Config, monitor *engine.Monitor, reg *prometheus.Registry, logger *zap.Logger) (*server.ConsoleServer, error) {
	keys, err := auth.NewKeyRing(cfg.Auth.IngestKeyHashes)
	if err != nil {
		return nil, &domain.ConfigurationError{Field: "auth.ingest_key_hashes", Reason: err.Error()}
	}

	var validator auth.TokenValidator
	if len(cfg.Auth.PublicKey) > 0 {
		pub, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
		if err != nil {
			return nil, &domain.ConfigurationError{Field: "auth.public_key_path", Reason: err.Error()}
		}
		validator = auth.NewOperatorValidator(pub, auth.ValidatorOptions{
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
			Leeway:   cfg.Auth.Leeway,
		})
	} else {
		logger.Warn("no operator public key configured: alert resolve endpoint is unauthenticated")
	}

	return server.NewConsoleServer(
		logger,
		reg,
		validator,
		keys,
		handler.NewStatusHandler(monitor, cfg.Server.StreamInterval, logger),
		handler.NewAlertHandler(monitor, logger),
		handler.NewIngestHandler(monitor),
	), nil
}

// maxWindow — сколько истории держит in-memory аккумулятор
func maxWindow(targets []domain.Target) time.Duration {
	var w time.Duration
	for _, t := range targets {
		if t.Window > w {
			w = t.Window
		}
	}
	return w
}
