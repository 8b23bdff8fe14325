package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Wallet metrics
	WalletOperations  *prometheus.CounterVec
	WalletDuration    *prometheus.HistogramVec
	WalletAmount      *prometheus.HistogramVec
	WalletsCreated    prometheus.Counter
	IdempotentReplays *prometheus.CounterVec

	// Reservation metrics
	ReservationsOpened    prometheus.Counter
	ReservationsCommitted prometheus.Counter
	ReservationsReleased  prometheus.Counter
	ReservationsExpired   prometheus.Counter
	ReservedClamped       prometheus.Counter

	// Sentinel metrics
	IntegrityChecks   *prometheus.CounterVec
	Quarantines       prometheus.Counter
	LedgerDrift       prometheus.Histogram
	SweepDuration     prometheus.Histogram
	IncidentsSent     *prometheus.CounterVec
	IncidentsThrottle prometheus.Counter

	// API metrics
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	HTTPInFlight      prometheus.Gauge
	RateLimitHits     *prometheus.CounterVec
	RateLimitFailOpen prometheus.Counter

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
}

// New creates all metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Wallet metrics
		WalletOperations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numledger_wallet_operations_total",
				Help: "Total wallet operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		WalletDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numledger_wallet_operation_duration_seconds",
				Help:    "Duration of wallet operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		WalletAmount: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numledger_wallet_amount",
				Help:    "Amounts moved by wallet operations",
				Buckets: []float64{0.1, 1, 5, 10, 50, 100, 500, 1000, 10000},
			},
			[]string{"operation"},
		),
		WalletsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_wallets_ensured_total",
			Help: "Total number of ensure-wallet calls",
		}),
		IdempotentReplays: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numledger_idempotent_replays_total",
				Help: "Operations answered from a prior idempotency key",
			},
			[]string{"operation"},
		),

		// Reservation metrics
		ReservationsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_reservations_opened_total",
			Help: "Total number of reservations opened",
		}),
		ReservationsCommitted: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_reservations_committed_total",
			Help: "Total number of reservations committed",
		}),
		ReservationsReleased: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_reservations_released_total",
			Help: "Total number of reservations rolled back",
		}),
		ReservationsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_reservations_expired_total",
			Help: "Total number of reservations released by the reaper",
		}),
		ReservedClamped: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_reserved_clamped_total",
			Help: "Wallets whose reserved counter was lowered to match open reservations",
		}),

		// Sentinel metrics
		IntegrityChecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numledger_integrity_checks_total",
				Help: "Integrity checks by result",
			},
			[]string{"result"},
		),
		Quarantines: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_quarantines_total",
			Help: "Total number of accounts quarantined",
		}),
		LedgerDrift: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "numledger_ledger_drift",
			Help:    "Detected drift between balance and ledger sum",
			Buckets: []float64{0.01, 0.1, 1, 10, 100, 1000},
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "numledger_sentinel_sweep_duration_seconds",
			Help:    "Duration of a full integrity sweep",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900},
		}),
		IncidentsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numledger_incidents_sent_total",
				Help: "Forensic incidents sent per channel and outcome",
			},
			[]string{"channel", "outcome"},
		),
		IncidentsThrottle: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_incidents_throttled_total",
			Help: "Forensic incidents suppressed by the per-user cooldown",
		}),

		// API metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "numledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "numledger_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		}),
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numledger_rate_limit_hits_total",
				Help: "Total rate limit hits",
			},
			[]string{"scope"},
		),
		RateLimitFailOpen: f.NewCounter(prometheus.CounterOpts{
			Name: "numledger_rate_limit_fail_open_total",
			Help: "Requests let through because the limiter backend failed",
		}),

		// Outbox metrics
		EventsPublished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "numledger_events_published_total",
				Help: "Outbox events published by type and outcome",
			},
			[]string{"event_type", "outcome"},
		),
	}
}
