// Package metrics holds the Prometheus collectors of the sync engine, the
// entitlement verifier and the document server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics. A nil *Metrics is valid and records nothing.
//
// Metrics:
//   - carenote_sync_cycles_total{status}
//   - carenote_sync_records_total{direction} - pulled, pushed, purged, failed
//   - carenote_sync_cycle_duration_seconds
//   - carenote_entitlement_verifications_total{outcome}
//   - carenote_server_requests_total{method,code}
type Metrics struct {
	CyclesTotal        *prometheus.CounterVec
	RecordsTotal       *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	VerificationsTotal *prometheus.CounterVec
	RequestsTotal      *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carenote_sync_cycles_total",
			Help: "Sync cycles by final status",
		}, []string{"status"}),
		RecordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carenote_sync_records_total",
			Help: "Records handled by sync cycles",
		}, []string{"direction"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "carenote_sync_cycle_duration_seconds",
			Help:    "Duration of sync cycles in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		VerificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carenote_entitlement_verifications_total",
			Help: "Purchase verifications by outcome",
		}, []string{"outcome"}),
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "carenote_server_requests_total",
			Help: "Server RPCs by method and status code",
		}, []string{"method", "code"}),
	}
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// AddRecords counts n records moved in direction.
func (m *Metrics) AddRecords(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(direction).Add(float64(n))
}

// Verification counts one verifier outcome.
func (m *Metrics) Verification(outcome string) {
	if m == nil {
		return
	}
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

// Request counts one server RPC.
func (m *Metrics) Request(method, code string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, code).Inc()
}
