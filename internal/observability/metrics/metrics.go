package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ConversationMetrics exposes counters/histograms for the scheduling assistant.
type ConversationMetrics struct {
	inboundTotal  *prometheus.CounterVec
	sessionEvents *prometheus.CounterVec
	commitsTotal  *prometheus.CounterVec
	commitLatency *prometheus.HistogramVec
	sweptSessions prometheus.Counter
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by intent and the session state they arrived in",
		}, []string{"intent", "state"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "session_events_total",
			Help:      "Session lifecycle events (started, committed, aborted, ended)",
		}, []string{"event"}),
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "commits_total",
			Help:      "Booking transactions by operation and result",
		}, []string{"operation", "result"}),
		commitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "bookings",
			Name:      "commit_latency_seconds",
			Help:      "Latency of booking transactions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		sweptSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "conversation",
			Name:      "sessions_expired_total",
			Help:      "In-memory sessions dropped after the inactivity TTL",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.sessionEvents, m.commitsTotal, m.commitLatency, m.sweptSessions)
	return m
}

func (m *ConversationMetrics) ObserveInbound(intent, state string) {
	if m == nil {
		return
	}
	if state == "" {
		state = "none"
	}
	m.inboundTotal.WithLabelValues(intent, state).Inc()
}

func (m *ConversationMetrics) ObserveSession(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

func (m *ConversationMetrics) ObserveCommit(operation, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(operation, result).Inc()
	m.commitLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveSweep matches the MemorySessionStore sweeper callback.
func (m *ConversationMetrics) ObserveSweep(removed int) {
	if m == nil || removed <= 0 {
		return
	}
	m.sweptSessions.Add(float64(removed))
}
