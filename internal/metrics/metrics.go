package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gateway"

// Metrics groups the collectors shared by the hub, the driver adapter and the token registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Connections         prometheus.Gauge
	AuthenticatedConns  prometheus.Gauge
	EventsDelivered     *prometheus.CounterVec
	EventsDropped       *prometheus.CounterVec
	MessagesIngested    *prometheus.CounterVec
	EnrichmentFailures  *prometheus.CounterVec
	WebhookDeliveries   *prometheus.CounterVec
	TokensIssued        prometheus.Counter
	TokensExpired       prometheus.Counter
	ActiveSessions      prometheus.Gauge
	DriverTeardownFails prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "connections",
			Help: "Live event hub connections.",
		}),
		AuthenticatedConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "authenticated_connections",
			Help: "Live event hub connections that presented a valid secret.",
		}),
		EventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "events_delivered_total",
			Help: "Events handed to a connection's send queue.",
		}, []string{"event"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "events_dropped_total",
			Help: "Events a connection refused (closed or full queue).",
		}, []string{"event"}),
		MessagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "messages_ingested_total",
			Help: "Inbound messages appended to a session buffer.",
		}, []string{"type"}),
		EnrichmentFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "enrichment_failures_total",
			Help: "Message enrichment lookups that fell back to minimal fields.",
		}, []string{"step"}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "webhook", Name: "deliveries_total",
			Help: "Webhook POST attempts by outcome.",
		}, []string{"outcome"}),
		TokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "token", Name: "issued_total",
			Help: "Tenant tokens issued.",
		}),
		TokensExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "token", Name: "expired_total",
			Help: "Tenant tokens reclaimed after expiry.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "sessions", Name: "active",
			Help: "Live tenant sessions.",
		}),
		DriverTeardownFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "driver", Name: "teardown_failures_total",
			Help: "Driver Destroy calls that returned an error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Connections,
			m.AuthenticatedConns,
			m.EventsDelivered,
			m.EventsDropped,
			m.MessagesIngested,
			m.EnrichmentFailures,
			m.WebhookDeliveries,
			m.TokensIssued,
			m.TokensExpired,
			m.ActiveSessions,
			m.DriverTeardownFails,
		)
	}
	return m
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.Connections.Inc()
}

func (m *Metrics) ConnectionClosed(wasAuthenticated bool) {
	if m == nil {
		return
	}
	m.Connections.Dec()
	if wasAuthenticated {
		m.AuthenticatedConns.Dec()
	}
}

func (m *Metrics) ConnectionAuthenticated() {
	if m == nil {
		return
	}
	m.AuthenticatedConns.Inc()
}

func (m *Metrics) EventDelivered(event string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(event).Inc()
}

func (m *Metrics) EventDropped(event string) {
	if m == nil {
		return
	}
	m.EventsDropped.WithLabelValues(event).Inc()
}

func (m *Metrics) MessageIngested(messageType string) {
	if m == nil {
		return
	}
	m.MessagesIngested.WithLabelValues(messageType).Inc()
}

func (m *Metrics) EnrichmentFailed(step string) {
	if m == nil {
		return
	}
	m.EnrichmentFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) WebhookDelivered(outcome string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TokenIssued() {
	if m == nil {
		return
	}
	m.TokensIssued.Inc()
}

func (m *Metrics) TokensReclaimed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensExpired.Add(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) TeardownFailed() {
	if m == nil {
		return
	}
	m.DriverTeardownFails.Inc()
}
