// Package forensics reports ledger drift incidents to human and machine
// channels.
package forensics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/infrastructure/metrics"
)

//go:generate mockgen -source=dispatcher.go -destination=mocks/mock_forensics.go -package=mocks

const (
	DefaultCooldown       = time.Hour
	DefaultChannelTimeout = 10 * time.Second
)

// Channel delivers one incident report.
type Channel interface {
	Name() string
	Send(ctx context.Context, incident *domain.ForensicIncident, report string) error
}

// CooldownStore throttles incidents per key.
type CooldownStore interface {
	// Acquire reports true when no cooldown was running for key and one
	// has now been started.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// MessagePublisher publishes raw payloads on a named topic.
type MessagePublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) (int64, error)
}

// Options configures a Dispatcher.
type Options struct {
	Cooldown       time.Duration
	ChannelTimeout time.Duration
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// Dispatcher fans incidents out to all channels. It implements
// usecase.IncidentDispatcher.
type Dispatcher struct {
	cooldown       CooldownStore
	channels       []Channel
	cooldownTTL    time.Duration
	channelTimeout time.Duration
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// NewDispatcher creates a Dispatcher. A nil cooldown falls back to a
// MemoryCooldown.
func NewDispatcher(cooldown CooldownStore, channels []Channel, opts Options) *Dispatcher {
	if cooldown == nil {
		cooldown = NewMemoryCooldown()
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.ChannelTimeout <= 0 {
		opts.ChannelTimeout = DefaultChannelTimeout
	}

	return &Dispatcher{
		cooldown:       cooldown,
		channels:       channels,
		cooldownTTL:    opts.Cooldown,
		channelTimeout: opts.ChannelTimeout,
		metrics:        opts.Metrics,
		logger:         opts.Logger.With().Str("component", "forensics").Logger(),
	}
}

// Dispatch sends incident to every channel unless the user is inside the
// cooldown window. Failures are logged and never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, incident *domain.ForensicIncident) {
	if !d.admit(ctx, incident.UserID) {
		d.logger.Info().
			Str("user_id", incident.UserID).
			Str("incident_id", incident.ID).
			Msg("incident suppressed by cooldown")
		if d.metrics != nil {
			d.metrics.IncidentsThrottle.Inc()
		}
		return
	}

	report := incident.Report()

	var wg sync.WaitGroup
	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			d.send(ctx, ch, incident, report)
		}(ch)
	}
	wg.Wait()
}

// admit applies the per-user cooldown. A failing store lets the alert
// through.
func (d *Dispatcher) admit(ctx context.Context, userID string) bool {
	acquired, err := d.cooldown.Acquire(ctx, userID, d.cooldownTTL)
	if err != nil {
		d.logger.Warn().Err(err).
			Str("user_id", userID).
			Msg("cooldown store unavailable, sending alert anyway")
		return true
	}

	return acquired
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, incident *domain.ForensicIncident, report string) {
	ctx, cancel := context.WithTimeout(ctx, d.channelTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("channel", ch.Name()).
				Msg("incident channel panicked")
			d.count(ch.Name(), "error")
		}
	}()

	if err := ch.Send(ctx, incident, report); err != nil {
		d.logger.Error().Err(err).
			Str("channel", ch.Name()).
			Str("user_id", incident.UserID).
			Str("incident_id", incident.ID).
			Msg("failed to deliver incident")
		d.count(ch.Name(), "error")
		return
	}

	d.count(ch.Name(), "ok")
}

func (d *Dispatcher) count(channel, outcome string) {
	if d.metrics != nil {
		d.metrics.IncidentsSent.WithLabelValues(channel, outcome).Inc()
	}
}
