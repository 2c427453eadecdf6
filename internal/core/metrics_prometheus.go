package core

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "medsafe"

// PrometheusMetricsRecorder exports service operation counters, latency
// histograms, blocked-write field counters and the overdue-action gauge.
type PrometheusMetricsRecorder struct {
	operations         *prometheus.CounterVec
	durations          *prometheus.HistogramVec
	validationFailures *prometheus.CounterVec
	overdue            prometheus.Gauge
}

// NewPrometheusMetricsRecorder creates the collectors and registers them
// with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "service",
			Name:      "operations_total",
			Help:      "Service operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "fmea",
			Name:      "validation_failures_total",
			Help:      "Blocked failure-mode writes by offending field.",
		}, []string{"field"}),
		overdue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "fmea",
			Name:      "overdue_actions",
			Help:      "Failure modes past their due date without a closed action.",
		}),
	}
	for _, c := range []prometheus.Collector{rec.operations, rec.durations, rec.validationFailures, rec.overdue} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := string(AuditStatusError)
	if success {
		status = string(AuditStatusSuccess)
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveValidationFailures implements ValidationObserver.
func (r *PrometheusMetricsRecorder) ObserveValidationFailures(_ context.Context, fields []string) {
	for _, field := range fields {
		r.validationFailures.WithLabelValues(field).Inc()
	}
}

// SetOverdueActions implements OverdueGauge.
func (r *PrometheusMetricsRecorder) SetOverdueActions(n int) {
	r.overdue.Set(float64(n))
}
