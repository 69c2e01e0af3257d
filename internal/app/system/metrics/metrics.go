// Package metrics exposes Prometheus metrics for the membership service,
// rate limiting and stored entity totals.
package metrics

import (
	"time"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the app registers. A nil *Metrics is a
// valid no-op, which keeps tests free of registry plumbing.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	RateLimited       *prometheus.CounterVec
	Entities          *prometheus.GaugeVec
}

// New registers the collectors with reg (prometheus.DefaultRegisterer in
// production, a fresh prometheus.NewRegistry() in tests).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cohorthub_membership_operations_total",
			Help: "Membership operations by operation and outcome (ok or error code)",
		}, []string{"operation", "outcome"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cohorthub_membership_operation_duration_seconds",
			Help:    "Duration of membership operations including transaction retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
		RateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cohorthub_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"scope"}),
		Entities: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cohorthub_entities",
			Help: "Stored entity totals, refreshed by a background task",
		}, []string{"kind"}),
	}
}

// ObserveOperation records one membership operation. Call with the time the
// operation started and the error it returned.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.From(err).Code)
	}
	m.Operations.WithLabelValues(op, outcome).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// IncRateLimited records a rejected request.
func (m *Metrics) IncRateLimited(scope string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(scope).Inc()
}

// SetEntity sets a stored-entity gauge.
func (m *Metrics) SetEntity(kind string, n int64) {
	if m == nil {
		return
	}
	m.Entities.WithLabelValues(kind).Set(float64(n))
}
