// Package observability owns the Prometheus collectors.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	idempotencyCounter    *prometheus.CounterVec
	payoutTransitionCount *prometheus.CounterVec
	webhookEventCounter   *prometheus.CounterVec
	networkErrorCounter   *prometheus.CounterVec
	reversalCheckCounter  *prometheus.CounterVec
	creditCounter         *prometheus.CounterVec
	reviewQueueGauge      prometheus.Gauge
	reviewOpenedCounter   *prometheus.CounterVec
	scheduledChecksGauge  prometheus.Gauge
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware and webhook dedup outcomes",
		}, []string{"outcome"})

		payoutTransitionCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_transitions_total",
			Help: "Payout state transitions",
		}, []string{"from", "to"})

		webhookEventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_webhook_events_total",
			Help: "Network webhook events by type and outcome",
		}, []string{"type", "outcome"})

		networkErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_network_errors_total",
			Help: "Payment network call failures",
		}, []string{"operation", "kind"})

		reversalCheckCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_reversal_checks_total",
			Help: "Delayed reversal check outcomes",
		}, []string{"outcome"})

		creditCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seller_credits_issued_total",
			Help: "Ledger credits issued to sellers",
		}, []string{"reason"})

		reviewQueueGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payout_review_queue_size",
			Help: "Current number of unresolved payout reviews",
		})

		reviewOpenedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_reviews_opened_total",
			Help: "Payout reviews opened by reason",
		}, []string{"reason"})

		scheduledChecksGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payout_reversal_checks_scheduled",
			Help: "Reversal checks waiting to run",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			idempotencyCounter,
			payoutTransitionCount,
			webhookEventCounter,
			networkErrorCounter,
			reversalCheckCounter,
			creditCounter,
			reviewQueueGauge,
			reviewOpenedCounter,
			scheduledChecksGauge,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementPayoutTransition(from, to string) {
	if payoutTransitionCount == nil {
		return
	}
	payoutTransitionCount.WithLabelValues(from, to).Inc()
}

func IncrementWebhookEvent(eventType, outcome string) {
	if webhookEventCounter == nil {
		return
	}
	webhookEventCounter.WithLabelValues(eventType, outcome).Inc()
}

func IncrementNetworkError(operation, kind string) {
	if networkErrorCounter == nil {
		return
	}
	networkErrorCounter.WithLabelValues(operation, kind).Inc()
}

func IncrementReversalCheck(outcome string) {
	if reversalCheckCounter == nil {
		return
	}
	reversalCheckCounter.WithLabelValues(outcome).Inc()
}

func IncrementCredit(reason string) {
	if creditCounter == nil {
		return
	}
	creditCounter.WithLabelValues(reason).Inc()
}

func SetReviewQueueSize(size int64) {
	if reviewQueueGauge == nil {
		return
	}
	reviewQueueGauge.Set(float64(size))
}

func IncrementReviewOpened(reason string) {
	if reviewOpenedCounter == nil {
		return
	}
	reviewOpenedCounter.WithLabelValues(reason).Inc()
}

func SetScheduledReversalChecks(n int64) {
	if scheduledChecksGauge == nil {
		return
	}
	scheduledChecksGauge.Set(float64(n))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
