package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/iho/numledger/internal/adapter/http"
	"github.com/iho/numledger/internal/adapter/http/handler"
	"github.com/iho/numledger/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/numledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/numledger/internal/adapter/repository/redis"
	"github.com/iho/numledger/internal/forensics"
	"github.com/iho/numledger/internal/infrastructure/config"
	"github.com/iho/numledger/internal/infrastructure/eventpublisher"
	"github.com/iho/numledger/internal/infrastructure/logger"
	"github.com/iho/numledger/internal/infrastructure/metrics"
	"github.com/iho/numledger/internal/infrastructure/postgres"
	"github.com/iho/numledger/internal/infrastructure/redis"
	"github.com/iho/numledger/internal/infrastructure/worker"
	"github.com/iho/numledger/internal/pricing"
	"github.com/iho/numledger/internal/usecase"
)

func main() {
	// Bootstrap logger until configuration is loaded
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup logger
	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "numledger"})
	logger.SetGlobal(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	// Connect to Redis
	var redisClient *goredis.Client
	if cfg.RedisEnabled {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
		log.Info().Msg("connected to redis")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool)
	walletRepo := postgresRepo.NewWalletRepository(pool)
	ledgerRepo := postgresRepo.NewLedgerRepository(pool)
	reservationRepo := postgresRepo.NewReservationRepository(pool)
	userRepo := postgresRepo.NewUserRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	auditRepo := postgresRepo.NewAuditRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()
	retrier := postgresRepo.NewRetrier(postgresRepo.RetrierConfig{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}, appLogger)

	// Forensic dispatcher
	var (
		cooldown  forensics.CooldownStore
		publisher forensics.MessagePublisher
	)
	if redisClient != nil {
		cooldown = redisRepo.NewCooldownStore(redisClient)
		publisher = redisRepo.NewPublisher(redisClient)
	}
	dispatcher := forensics.NewDispatcher(cooldown, buildChannels(cfg, appLogger, publisher), forensics.Options{
		Cooldown:       cfg.ForensicCooldown,
		ChannelTimeout: cfg.ForensicChannelTimeout,
		Metrics:        m,
		Logger:         appLogger,
	})

	// Initialize use cases
	sentinelUC := usecase.NewSentinelUseCase(txManager, walletRepo, ledgerRepo, userRepo, outboxRepo, auditRepo, idGen,
		usecase.SentinelOptions{
			Dispatcher: dispatcher,
			Retrier:    retrier,
			Metrics:    m,
			Logger:     appLogger,
		})

	walletOpts := usecase.WalletOptions{
		Retrier:        retrier,
		Metrics:        m,
		Logger:         appLogger,
		ReservationTTL: cfg.ReservationTTL,
	}
	if cfg.SentinelGuardEnabled {
		walletOpts.Guard = sentinelUC
	}
	walletUC := usecase.NewWalletUseCase(txManager, walletRepo, ledgerRepo, reservationRepo, idGen, walletOpts)
	reservationUC := usecase.NewReservationUseCase(txManager, walletRepo, reservationRepo, outboxRepo, auditRepo, idGen, m, appLogger)

	// Background workers
	sink, closeSink, err := buildEventSink(cfg, appLogger, publisher)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure event sink")
	}
	defer closeSink()

	workers := []func(context.Context) error{
		eventpublisher.NewEventPublisher(eventpublisher.Config{
			OutboxRepo: outboxRepo,
			Publisher:  sink,
			Metrics:    m,
			Logger:     appLogger,
			BatchSize:  cfg.EventBatchSize,
			Interval:   cfg.EventInterval,
			Retention:  cfg.EventRetention,
		}).Start,
		worker.NewReservationReaper(reservationUC, cfg.ReservationReapInterval, appLogger).Start,
	}
	if cfg.SentinelSweepEnabled {
		workers = append(workers, worker.NewIntegritySweeper(sentinelUC, worker.SweeperConfig{
			Interval:        cfg.SentinelSweepInterval,
			ChecksPerSecond: cfg.SentinelSweepRate,
			Burst:           cfg.SentinelSweepBurst,
			Logger:          appLogger,
		}).Start)
	}

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, start := range workers {
		wg.Add(1)
		go func(start func(context.Context) error) {
			defer wg.Done()
			if err := start(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("worker stopped")
			}
		}(start)
	}

	// Initialize handlers
	var redisPing handler.Pinger
	if redisClient != nil {
		redisPing = func(ctx context.Context) error { return redis.Ping(ctx, redisClient) }
	}

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		WalletHandler:   handler.NewWalletHandler(walletUC),
		SentinelHandler: handler.NewSentinelHandler(sentinelUC),
		PricingHandler:  handler.NewPricingHandler(pricing.NewOptimizer(pricingWeights(cfg))),
		HealthHandler:   handler.NewHealthHandler(pool.Ping, redisPing),
		RateLimiter:     buildLimiter(cfg, redisClient),
		Metrics:         m,
		Gatherer:        registry,
		Logger:          appLogger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	cancelWorkers()
	wg.Wait()

	// Incidents still in flight are delivered before exit.
	sentinelUC.Wait()

	log.Info().Msg("server stopped")
}

// buildChannels returns the incident channels enabled by cfg. A nil
// publisher disables the pub/sub channel.
func buildChannels(cfg *config.Config, l zerolog.Logger, publisher forensics.MessagePublisher) []forensics.Channel {
	return forensics.BuildChannels(forensics.ChannelConfig{
		Log:        cfg.ForensicLogChannel,
		Logger:     l,
		WebhookURL: cfg.ForensicWebhookURL,
		Publisher:  publisher,
		Topic:      cfg.ForensicPubSubChannel,
	})
}

// buildEventSink selects the outbox sink. The returned func releases it.
func buildEventSink(cfg *config.Config, l zerolog.Logger, publisher eventpublisher.ChannelPublisher) (eventpublisher.Publisher, func() error, error) {
	noop := func() error { return nil }

	switch cfg.EventSink {
	case "log":
		return eventpublisher.NewLogPublisher(l), noop, nil
	case "redis":
		if publisher == nil {
			return nil, noop, errors.New("redis event sink requires redis")
		}
		return eventpublisher.NewPubSubPublisher(publisher, cfg.EventChannel), noop, nil
	case "kafka":
		writer := eventpublisher.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
		return eventpublisher.NewKafkaPublisher(writer), writer.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown event sink %q", cfg.EventSink)
	}
}

// buildLimiter prefers the shared Redis window and falls back to a
// per-process token bucket.
func buildLimiter(cfg *config.Config, client *goredis.Client) middleware.Limiter {
	if !cfg.RateLimitEnabled {
		return nil
	}
	if client != nil {
		return redisRepo.NewRateLimiter(client, cfg.RateLimitRequests, cfg.RateLimitWindow)
	}

	perSecond := float64(cfg.RateLimitRequests) / cfg.RateLimitWindow.Seconds()
	return middleware.NewLocalLimiter(perSecond, cfg.RateLimitRequests)
}

func pricingWeights(cfg *config.Config) pricing.Weights {
	return pricing.Weights{
		Cost:  cfg.PricingWeightCost,
		Stock: cfg.PricingWeightStock,
		Rate:  cfg.PricingWeightRate,
	}
}
