// Package metrics provides the Prometheus collectors for deskcored,
// trimmed from the teacher's infrastructure/metrics to the counters
// this process's own components actually produce: job dispatch
// outcomes and durations, and webhook delivery outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector this process registers.
type Metrics struct {
	JobsProcessedTotal   *prometheus.CounterVec
	JobDuration          *prometheus.HistogramVec
	WebhookDeliveryTotal *prometheus.CounterVec
}

// New creates and registers every collector against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskcore_jobs_processed_total",
				Help: "Total number of jobs dispatched by the worker, by job type and outcome.",
			},
			[]string{"job_type", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deskcore_job_duration_seconds",
				Help:    "Job handler duration in seconds, by job type.",
				Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"job_type"},
		),
		WebhookDeliveryTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deskcore_webhook_deliveries_total",
				Help: "Total number of webhook delivery attempts, by outcome.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(
		m.JobsProcessedTotal,
		m.JobDuration,
		m.WebhookDeliveryTotal,
	)
	return m
}

// RecordJob records one dispatched job's outcome and duration.
func (m *Metrics) RecordJob(jobType, status string, d time.Duration) {
	m.JobsProcessedTotal.WithLabelValues(jobType, status).Inc()
	m.JobDuration.WithLabelValues(jobType).Observe(d.Seconds())
}

// RecordWebhookDelivery records one delivery attempt's outcome.
func (m *Metrics) RecordWebhookDelivery(status string) {
	m.WebhookDeliveryTotal.WithLabelValues(status).Inc()
}
