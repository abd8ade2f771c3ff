// Package metrics defines the Prometheus collectors each YCSYH binary exports
// under the ycsyh_ namespace. Constructors accept a nil Registerer, which
// yields working but unregistered collectors; a nil recorder is also a no-op.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ycsyh"

// Fulfillment outcomes, the outcome label of ycsyh_orders_fulfillment_total.
const (
	OutcomeClaimed          = "claimed"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeUnpaid           = "unpaid"
	OutcomePDFFailed        = "pdf_failed"
	OutcomeArchiveFailed    = "archive_failed"
	OutcomeEmailFailed      = "email_failed"
	OutcomeEmailSent        = "email_sent"
	OutcomePaidFailedOrder  = "paid_failed_order"
)

func counter(f promauto.Factory, subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	return f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// OrderMetrics is used by checkout, fulfillment and the expiry job.
type OrderMetrics struct {
	checkouts   *prometheus.CounterVec
	fulfillment *prometheus.CounterVec
	failed      *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	f := promauto.With(reg)
	return &OrderMetrics{
		checkouts:   counter(f, "orders", "checkouts_total", "Checkout sessions created, by license type.", "license_type"),
		fulfillment: counter(f, "orders", "fulfillment_total", "Fulfillment attempts by trigger and outcome.", "trigger", "outcome"),
		failed:      counter(f, "orders", "failed_total", "Orders moved to failed, by reason.", "reason"),
	}
}

func (m *OrderMetrics) IncCheckout(licenseType string) {
	if m != nil {
		m.checkouts.WithLabelValues(label(licenseType)).Inc()
	}
}

func (m *OrderMetrics) IncFulfillment(trigger, outcome string) {
	if m != nil {
		m.fulfillment.WithLabelValues(label(trigger), label(outcome)).Inc()
	}
}

func (m *OrderMetrics) IncFailed(reason string) {
	if m != nil {
		m.failed.WithLabelValues(label(reason)).Inc()
	}
}

// OutboxMetrics is used by the outbox publisher loop.
type OutboxMetrics struct {
	published    *prometheus.CounterVec
	failed       *prometheus.CounterVec
	deadLettered *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	f := promauto.With(reg)
	return &OutboxMetrics{
		published:    counter(f, "outbox", "published_total", "Outbox events published to Pub/Sub.", "event_type"),
		failed:       counter(f, "outbox", "publish_failures_total", "Retryable publish failures.", "event_type"),
		deadLettered: counter(f, "outbox", "dead_lettered_total", "Events moved to the DLQ, by reason.", "event_type", "reason"),
	}
}

func (m *OutboxMetrics) IncPublished(eventType string) {
	if m != nil {
		m.published.WithLabelValues(label(eventType)).Inc()
	}
}

func (m *OutboxMetrics) IncFailed(eventType string) {
	if m != nil {
		m.failed.WithLabelValues(label(eventType)).Inc()
	}
}

func (m *OutboxMetrics) IncDeadLettered(eventType, reason string) {
	if m != nil {
		m.deadLettered.WithLabelValues(label(eventType), label(reason)).Inc()
	}
}

// CronJobMetrics is used by the cron-worker scheduler.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	success     *prometheus.CounterVec
	failure     *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	f := promauto.With(reg)
	return &CronJobMetrics{
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_duration_seconds",
			Help:      "Duration of cron jobs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		success: counter(f, "cron", "job_success_total", "Successful cron job executions.", "job"),
		failure: counter(f, "cron", "job_failure_total", "Failed cron job executions.", "job"),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cron",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of each job.",
		}, []string{"job"}),
	}
}

func (c *CronJobMetrics) ObserveDuration(job string, d time.Duration) {
	if c != nil {
		c.duration.WithLabelValues(label(job)).Observe(d.Seconds())
	}
}

func (c *CronJobMetrics) IncSuccess(job string) {
	if c != nil {
		c.success.WithLabelValues(label(job)).Inc()
		c.lastSuccess.WithLabelValues(label(job)).SetToCurrentTime()
	}
}

func (c *CronJobMetrics) IncFailure(job string) {
	if c != nil {
		c.failure.WithLabelValues(label(job)).Inc()
	}
}
