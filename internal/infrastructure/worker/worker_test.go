package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/numledger/internal/usecase"
)

type stubSweeper struct {
	runs    atomic.Int32
	wallets int
	err     error
}

func (s *stubSweeper) VerifyAll(ctx context.Context, pace func(context.Context) error) (*usecase.IntegrityReport, error) {
	s.runs.Add(1)
	report := &usecase.IntegrityReport{}
	for range s.wallets {
		if err := pace(ctx); err != nil {
			return report, err
		}
		report.Checked++
		report.Intact++
	}
	return report, s.err
}

type stubReaper struct {
	runs atomic.Int32
	at   time.Time
}

func (s *stubReaper) Reap(_ context.Context, now time.Time) (*usecase.ReapResult, error) {
	s.runs.Add(1)
	s.at = now
	return &usecase.ReapResult{Expired: 2, Clamped: 1}, nil
}

func TestIntegritySweeperRunOnceUsesPacing(t *testing.T) {
	s := &stubSweeper{wallets: 3}
	w := NewIntegritySweeper(s, SweeperConfig{ChecksPerSecond: 1000, Burst: 1, Logger: zerolog.Nop()})

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
}

func TestIntegritySweeperPacingHonorsCancellation(t *testing.T) {
	s := &stubSweeper{wallets: 5}
	w := NewIntegritySweeper(s, SweeperConfig{ChecksPerSecond: 0.001, Burst: 1, Logger: zerolog.Nop()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := w.RunOnce(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, report.Checked, "only the burst token is available")
}

func TestIntegritySweeperUnpacedByDefault(t *testing.T) {
	s := &stubSweeper{wallets: 100}
	w := NewIntegritySweeper(s, SweeperConfig{Logger: zerolog.Nop()})

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100, report.Checked)
}

func TestIntegritySweeperStartRunsUntilCancelled(t *testing.T) {
	s := &stubSweeper{wallets: 1, err: errors.New("transient")}
	w := NewIntegritySweeper(s, SweeperConfig{Interval: 5 * time.Millisecond, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return s.runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestReservationReaperRunOnceUsesClock(t *testing.T) {
	r := &stubReaper{}
	w := NewReservationReaper(r, time.Minute, zerolog.Nop())
	fixed := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	res, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Expired)
	assert.Equal(t, fixed, r.at)
}

func TestReservationReaperStartRunsUntilCancelled(t *testing.T) {
	r := &stubReaper{}
	w := NewReservationReaper(r, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return r.runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
