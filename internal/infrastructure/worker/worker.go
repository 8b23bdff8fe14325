// Package worker runs the periodic background jobs of the ledger: the
// integrity sweep and the reservation reaper.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/iho/numledger/internal/usecase"
)

// Sweeper verifies every wallet.
type Sweeper interface {
	VerifyAll(ctx context.Context, pace func(context.Context) error) (*usecase.IntegrityReport, error)
}

// Reaper releases expired and orphaned holds.
type Reaper interface {
	Reap(ctx context.Context, now time.Time) (*usecase.ReapResult, error)
}

// SweeperConfig configures an IntegritySweeper.
type SweeperConfig struct {
	Interval        time.Duration
	ChecksPerSecond float64 // <= 0 disables pacing
	Burst           int
	Logger          zerolog.Logger
}

// IntegritySweeper periodically runs the sentinel over all wallets, paced so
// a sweep does not saturate the database.
type IntegritySweeper struct {
	sentinel Sweeper
	limiter  *rate.Limiter
	interval time.Duration
	logger   zerolog.Logger
}

// NewIntegritySweeper creates an IntegritySweeper.
func NewIntegritySweeper(sentinel Sweeper, cfg SweeperConfig) *IntegritySweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	limit := rate.Inf
	if cfg.ChecksPerSecond > 0 {
		limit = rate.Limit(cfg.ChecksPerSecond)
	}

	return &IntegritySweeper{
		sentinel: sentinel,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		interval: cfg.Interval,
		logger:   cfg.Logger.With().Str("worker", "integrity_sweeper").Logger(),
	}
}

// RunOnce performs a single paced sweep.
func (w *IntegritySweeper) RunOnce(ctx context.Context) (*usecase.IntegrityReport, error) {
	return w.sentinel.VerifyAll(ctx, w.limiter.Wait)
}

// Start sweeps every interval until ctx is cancelled.
func (w *IntegritySweeper) Start(ctx context.Context) error {
	return run(ctx, w.interval, w.logger, func(ctx context.Context) error {
		report, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if report.Quarantined > 0 {
			w.logger.Warn().
				Int("quarantined", report.Quarantined).
				Int("checked", report.Checked).
				Msg("sweep quarantined wallets")
		}
		return nil
	})
}

// ReservationReaper periodically releases expired reservations.
type ReservationReaper struct {
	reaper   Reaper
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewReservationReaper creates a ReservationReaper.
func NewReservationReaper(reaper Reaper, interval time.Duration, logger zerolog.Logger) *ReservationReaper {
	if interval <= 0 {
		interval = time.Minute
	}

	return &ReservationReaper{
		reaper:   reaper,
		interval: interval,
		logger:   logger.With().Str("worker", "reservation_reaper").Logger(),
		now:      time.Now,
	}
}

// RunOnce performs one reap pass.
func (w *ReservationReaper) RunOnce(ctx context.Context) (*usecase.ReapResult, error) {
	return w.reaper.Reap(ctx, w.now())
}

// Start reaps every interval until ctx is cancelled.
func (w *ReservationReaper) Start(ctx context.Context) error {
	return run(ctx, w.interval, w.logger, func(ctx context.Context) error {
		res, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if res.Expired > 0 || res.Clamped > 0 {
			w.logger.Info().
				Int("expired", res.Expired).
				Int("clamped", res.Clamped).
				Msg("reservations reaped")
		}
		return nil
	})
}

func run(ctx context.Context, interval time.Duration, logger zerolog.Logger, job func(context.Context) error) error {
	logger.Info().Dur("interval", interval).Msg("worker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := job(ctx); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("worker run failed")
			}
		}
	}
}
