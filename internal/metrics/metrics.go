// Package metrics exposes the prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"studyai/internal/models"
)

// Upload outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeOK       = "ok"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	uploads       *prometheus.CounterVec
	replies       *prometheus.CounterVec
	notifications *prometheus.CounterVec
	backend       *prometheus.HistogramVec
}

// New registers the collectors on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyai_uploads_total",
			Help: "Uploaded files by outcome.",
		}, []string{"outcome"}),
		replies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyai_replies_total",
			Help: "Assistant replies by kind (answer, summary) and outcome.",
		}, []string{"kind", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyai_notifications_total",
			Help: "User notifications emitted by kind.",
		}, []string{"kind"}),
		backend: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "studyai_backend_seconds",
			Help:    "Latency of backend calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 3, 5, 10, 30},
		}, []string{"operation"}),
	}
	reg.MustRegister(m.uploads, m.replies, m.notifications, m.backend)
	return m
}

// RegisterSessionGauge exposes the number of live sessions.
func RegisterSessionGauge(reg prometheus.Registerer, count func() int) {
	if reg == nil || count == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "studyai_sessions_active",
		Help: "Number of live sessions.",
	}, func() float64 { return float64(count()) }))
}

func (m *Metrics) ObserveUpload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveReply(kind, outcome string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveNotification(kind models.NotificationKind) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(kind)).Inc()
}

// ObserveBackend records the time spent since start in operation.
func (m *Metrics) ObserveBackend(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.backend.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
