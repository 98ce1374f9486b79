package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/api"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/config"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/db"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/logging"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/metrics"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/notify"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/payment"
	redisclient "github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/redis"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/seed"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/template"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/video"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("prod", "info")
		fallback.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("storage", cfg.Storage).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(rootCtx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("api-server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("api-server stopped")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	routerCfg := api.RouterConfig{
		Logger:   logger,
		Env:      cfg.Env,
		Version:  version,
		Gatherer: prometheus.DefaultGatherer,
	}

	var (
		apptRepo     appointment.Repository
		templateRepo template.Repository
	)
	switch cfg.Storage {
	case config.StoragePostgres:
		if cfg.MigrateOnStart {
			if err := migrateUp(cfg.PostgresDSN); err != nil {
				return err
			}
			logger.Info().Msg("migrations applied")
		}

		pgCtx, cancelPg := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		cancelPg()
		if err != nil {
			return err
		}
		defer pool.Close()
		logger.Info().Msg("connected to Postgres")

		apptRepo = appointment.NewPgRepository(pool, cfg.Location)
		templateRepo = template.NewPgRepository(pool)
		routerCfg.Postgres = pool
	default:
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		memRepo := appointment.NewMemoryRepository()
		memTemplates := template.NewMemoryRepository()
		if cfg.SeedProviders > 0 || cfg.SeedPatients > 0 {
			ds, err := seed.Generate(gofakeit.New(0), cfg.SeedProviders, cfg.SeedPatients)
			if err != nil {
				return err
			}
			if err := seed.LoadMemory(ctx, ds, memRepo, memTemplates); err != nil {
				return err
			}
			for _, p := range ds.Providers {
				logger.Info().Str("provider_id", p.ID.String()).Str("name", p.Name).Msg("seeded provider")
			}
			logger.Info().Int("patients", len(ds.Patients)).Msg("seeded patients")
		}
		apptRepo = memRepo
		templateRepo = memTemplates
	}

	var (
		rdb    *redis.Client
		locker redisclient.Locker
	)
	if cfg.RedisAddr != "" {
		client, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
		rdb = client
		locker = redisclient.NewRedisSlotLocker(client, cfg.LockTTL)
		routerCfg.Redis = redisclient.NewPinger(client)
	} else {
		logger.Warn().Msg("REDIS_ADDR not set; slot locks are process-local")
		locker = redisclient.NewLocalSlotLocker()
	}

	templates := template.NewService(templateRepo, cfg.DefaultSlotMinutes)
	svc := appointment.NewService(apptRepo, templates, locker, cfg, logger).
		WithMetrics(metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer))

	if len(cfg.KafkaBrokers) > 0 {
		kn := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kn.Close(); err != nil {
				logger.Warn().Err(err).Msg("error closing kafka writer")
			}
		}()
		svc.WithNotifier(kn)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing appointment events to Kafka")
	} else {
		svc.WithNotifier(notify.NewLogNotifier(logger))
	}

	if cfg.VideoBaseURL != "" {
		rooms, err := video.NewURLRoomProvider(cfg.VideoBaseURL)
		if err != nil {
			return err
		}
		svc.WithRoomProvider(rooms)
	}

	if rdb != nil {
		ledger := payment.NewRedisLedger(rdb)
		routerCfg.Payments = ledger
		if cfg.RequirePrepayment {
			svc.WithPaymentGuard(ledger)
		}
	} else if cfg.RequirePrepayment {
		return errors.New("REQUIRE_PREPAYMENT needs Redis for the payment ledger")
	}

	routerCfg.Appointments = svc
	routerCfg.Templates = templates

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func migrateUp(dsn string) error {
	m, err := db.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()
	return m.Up()
}
