// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/adiadia/salesflow/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeAccepted  = "accepted"
	OutcomeMalformed = "malformed"
	OutcomeTooLarge  = "too_large"
	OutcomeLimited   = "rate_limited"
	OutcomeFailed    = "storage_failure"

	CompactionPublished = "published"
	CompactionSkipped   = "skipped"
	CompactionAborted   = "aborted"
)

var (
	initOnce sync.Once

	webhookBatchesCounter    *prometheus.CounterVec
	webhookEventsCounter     prometheus.Counter
	compactionsCounter       *prometheus.CounterVec
	compactionDurationMetric prometheus.Histogram
	recordsRejectedCounter   *prometheus.CounterVec
	canonicalRecordsGauge    prometheus.Gauge
	notificationsCounter     *prometheus.CounterVec
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		webhookBatchesCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_batches_total",
				Help: "Total number of webhook submissions by outcome.",
			},
			[]string{"outcome"},
		)

		webhookEventsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "webhook_events_accepted_total",
				Help: "Total number of raw events appended through the webhook.",
			},
		)

		compactionsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compactions_total",
				Help: "Total number of compaction attempts by outcome.",
			},
			[]string{"outcome"},
		)

		compactionDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "compaction_duration_seconds",
				Help:    "Duration of compactions that ran to completion or abort.",
				Buckets: prometheus.DefBuckets,
			},
		)

		recordsRejectedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "records_rejected_total",
				Help: "Total number of raw events dropped during compaction by reason.",
			},
			[]string{"reason"},
		)

		canonicalRecordsGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "canonical_records",
				Help: "Number of records in the last published dataset.",
			},
		)

		notificationsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "publish_notifications_total",
				Help: "Total number of dataset publication notifications by outcome.",
			},
			[]string{"outcome"},
		)

		prometheus.MustRegister(
			webhookBatchesCounter,
			webhookEventsCounter,
			compactionsCounter,
			compactionDurationMetric,
			recordsRejectedCounter,
			canonicalRecordsGauge,
			notificationsCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, outcome := range []string{
			OutcomeAccepted,
			OutcomeMalformed,
			OutcomeTooLarge,
			OutcomeLimited,
			OutcomeFailed,
		} {
			webhookBatchesCounter.WithLabelValues(outcome)
		}

		for _, outcome := range []string{
			CompactionPublished,
			CompactionSkipped,
			CompactionAborted,
		} {
			compactionsCounter.WithLabelValues(outcome)
		}

		for _, reason := range domain.RejectionLabels {
			recordsRejectedCounter.WithLabelValues(reason)
		}
	})
}

func IncWebhookBatch(outcome string) {
	Init()
	webhookBatchesCounter.WithLabelValues(outcome).Inc()
}

func AddWebhookEvents(n int) {
	Init()
	webhookEventsCounter.Add(float64(n))
}

func IncCompaction(outcome string) {
	Init()
	compactionsCounter.WithLabelValues(outcome).Inc()
}

func ObserveCompactionDuration(d time.Duration) {
	Init()
	compactionDurationMetric.Observe(d.Seconds())
}

func AddRejected(reason string, n int) {
	Init()
	recordsRejectedCounter.WithLabelValues(reason).Add(float64(n))
}

func SetCanonicalRecords(n int) {
	Init()
	canonicalRecordsGauge.Set(float64(n))
}

func IncNotification(outcome string) {
	Init()
	notificationsCounter.WithLabelValues(outcome).Inc()
}
