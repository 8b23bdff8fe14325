package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	postgresRepo "github.com/iho/numledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/numledger/internal/adapter/repository/redis"
	"github.com/iho/numledger/internal/forensics"
	"github.com/iho/numledger/internal/infrastructure/config"
	"github.com/iho/numledger/internal/infrastructure/logger"
	"github.com/iho/numledger/internal/infrastructure/postgres"
	"github.com/iho/numledger/internal/infrastructure/redis"
	"github.com/iho/numledger/internal/usecase"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "numledger",
		Short:         "numledger operations tool",
		Long:          `Maintenance commands for the numledger wallet ledger: migrations, integrity checks, reservation reaping and price ranking.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the numledger API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Command timeout")

	rootCmd.AddCommand(
		migrateCmd(),
		sentinelCmd(),
		reservationsCmd(),
		pricingCmd(),
		walletCmd(),
	)

	return rootCmd
}

// app holds the storage-backed services commands operate on.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	sentinel     *usecase.SentinelUseCase
	reservations *usecase.ReservationUseCase
	cooldown     *redisRepo.CooldownStore // nil without redis
	close        func()
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	l := logger.New(logger.Config{Level: cfg.LogLevel, Format: "console", Service: "numledger-cli"})
	logger.SetGlobal(l)

	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       4,
		MinConns:       1,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	closers := []func(){pool.Close}

	var (
		cooldown       forensics.CooldownStore
		publisher      forensics.MessagePublisher
		sharedCooldown *redisRepo.CooldownStore
	)
	if cfg.RedisEnabled {
		var client *goredis.Client
		client, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			l.Warn().Err(err).Msg("redis unavailable, incident cooldown is process-local")
		} else {
			sharedCooldown = redisRepo.NewCooldownStore(client)
			cooldown = sharedCooldown
			publisher = redisRepo.NewPublisher(client)
			closers = append(closers, func() { _ = client.Close() })
		}
	}

	dispatcher := forensics.NewDispatcher(cooldown, forensics.BuildChannels(forensics.ChannelConfig{
		Log:        cfg.ForensicLogChannel,
		Logger:     l,
		WebhookURL: cfg.ForensicWebhookURL,
		Publisher:  publisher,
		Topic:      cfg.ForensicPubSubChannel,
	}), forensics.Options{
		Cooldown:       cfg.ForensicCooldown,
		ChannelTimeout: cfg.ForensicChannelTimeout,
		Logger:         l,
	})

	txManager := postgresRepo.NewTxManager(pool)
	walletRepo := postgresRepo.NewWalletRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	auditRepo := postgresRepo.NewAuditRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()
	retrier := postgresRepo.NewRetrier(postgresRepo.RetrierConfig{
		MaxRetries:      cfg.RetryMaxRetries,
		InitialInterval: cfg.RetryInitialInterval,
		MaxInterval:     cfg.RetryMaxInterval,
	}, l)

	sentinel := usecase.NewSentinelUseCase(
		txManager,
		walletRepo,
		postgresRepo.NewLedgerRepository(pool),
		postgresRepo.NewUserRepository(pool),
		outboxRepo,
		auditRepo,
		idGen,
		usecase.SentinelOptions{Dispatcher: dispatcher, Retrier: retrier, Logger: l},
	)

	reservations := usecase.NewReservationUseCase(
		txManager,
		walletRepo,
		postgresRepo.NewReservationRepository(pool),
		outboxRepo,
		auditRepo,
		idGen,
		nil,
		l,
	)

	return &app{
		cfg:          cfg,
		logger:       l,
		sentinel:     sentinel,
		reservations: reservations,
		cooldown:     sharedCooldown,
		close: func() {
			// Incidents raised by the command are delivered before exit.
			sentinel.Wait()
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

// withApp runs fn against a freshly opened app bounded by --timeout.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
