package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instruments.
// A nil *Metrics is accepted everywhere and disables instrumentation.
type Metrics struct {
	SessionsActive  prometheus.Gauge
	OnlineUsers     prometheus.Gauge
	LongPollWaiters prometheus.Gauge

	BroadcastsTotal  *prometheus.CounterVec
	EnvelopesDropped prometheus.Counter
	SignalsDeposited *prometheus.CounterVec
	SignalsExpired   prometheus.Counter
	PresenceEvents   *prometheus.CounterVec
}

// NewMetrics registers the engine instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ripple", Subsystem: "realtime",
			Name: "sessions_active",
			Help: "Live push-transport sessions.",
		}),
		OnlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ripple", Subsystem: "realtime",
			Name: "online_users",
			Help: "Users currently considered online.",
		}),
		LongPollWaiters: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ripple", Subsystem: "realtime",
			Name: "longpoll_waiters",
			Help: "Suspended awaitUpdates calls.",
		}),
		BroadcastsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripple", Subsystem: "realtime",
			Name: "broadcasts_total",
			Help: "Room broadcasts by event type.",
		}, []string{"type"}),
		EnvelopesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ripple", Subsystem: "realtime",
			Name: "envelopes_dropped_total",
			Help: "Envelopes dropped due to full session queues.",
		}),
		SignalsDeposited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripple", Subsystem: "realtime",
			Name: "signals_deposited_total",
			Help: "Ephemeral signals deposited into mailboxes, by kind.",
		}, []string{"kind"}),
		SignalsExpired: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ripple", Subsystem: "realtime",
			Name: "signals_expired_total",
			Help: "Ephemeral signals dropped past their TTL.",
		}),
		PresenceEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ripple", Subsystem: "realtime",
			Name: "presence_events_total",
			Help: "Presence transitions emitted, by state.",
		}, []string{"state"}),
	}
}
