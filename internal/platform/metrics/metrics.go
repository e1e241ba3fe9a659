package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	WorkTransitions       *prometheus.CounterVec
	ConnectionUpserts     *prometheus.CounterVec
	InvitationTransitions *prometheus.CounterVec
	TxDuration            *prometheus.HistogramVec
	OutboxPublished       *prometheus.CounterVec
}

// New registers the metrics on the default registry. Call once per process.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer lets tests use an isolated registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WorkTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homeledger_work_transitions_total",
			Help: "Work record lifecycle transitions by transition and outcome",
		}, []string{"transition", "outcome"}),
		ConnectionUpserts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homeledger_connection_upserts_total",
			Help: "Connection upserts by path (created, updated, raced)",
		}, []string{"path"}),
		InvitationTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homeledger_invitation_transitions_total",
			Help: "Invitation lifecycle transitions by transition and outcome",
		}, []string{"transition", "outcome"}),
		TxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homeledger_tx_duration_seconds",
			Help:    "Duration of storage transactions by operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homeledger_outbox_published_total",
			Help: "Outbox events handed to the notification broker by outcome",
		}, []string{"outcome"}),
	}
}

// The helpers below are nil-safe so services can run without metrics.

func (m *Metrics) ObserveWorkTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.WorkTransitions.WithLabelValues(transition, outcome).Inc()
}

func (m *Metrics) ObserveConnectionUpsert(path string) {
	if m == nil {
		return
	}
	m.ConnectionUpserts.WithLabelValues(path).Inc()
}

func (m *Metrics) ObserveInvitationTransition(transition, outcome string) {
	if m == nil {
		return
	}
	m.InvitationTransitions.WithLabelValues(transition, outcome).Inc()
}

func (m *Metrics) ObserveTx(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.TxDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveOutboxPublished(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.OutboxPublished.WithLabelValues(outcome).Add(float64(n))
}

// Outcome maps an error onto a label: nil is ok, recoverable domain errors are
// rejected, anything else is an error.
func Outcome(err error, recoverable func(error) bool) string {
	switch {
	case err == nil:
		return OutcomeOK
	case recoverable != nil && recoverable(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
