// Package metrics wires the scheduler's queue depth, dispatch latency, and
// job outcomes into Prometheus vectors, registered once at init, with a
// package-level Reset() for tests.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var mu sync.RWMutex

var (
	queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fisher_queue_depth",
		Help: "Number of jobs currently queued for a hook.",
	}, []string{"hook"})

	dispatchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fisher_dispatch_latency_seconds",
		Help:    "Time between a job's enqueue and its dispatch to a worker.",
		Buckets: prometheus.DefBuckets,
	}, []string{"hook"})

	jobsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fisher_jobs_processed_total",
		Help: "Total jobs processed, partitioned by hook and outcome.",
	}, []string{"hook", "outcome"})

	webhookRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fisher_webhook_requests_total",
		Help: "Total inbound webhook requests, partitioned by hook and result.",
	}, []string{"hook", "result"})
)

func init() {
	prometheus.MustRegister(queueDepth, dispatchLatency, jobsProcessed, webhookRequests)
}

// SetQueueDepth records the current queue length for a hook.
func SetQueueDepth(hook string, depth int) {
	mu.RLock()
	defer mu.RUnlock()
	queueDepth.WithLabelValues(hook).Set(float64(depth))
}

// ObserveDispatchLatency records the enqueue-to-dispatch delay for a hook.
func ObserveDispatchLatency(hook string, d time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	dispatchLatency.WithLabelValues(hook).Observe(d.Seconds())
}

// IncJobsProcessed increments the processed counter for a hook/outcome pair.
func IncJobsProcessed(hook string, success bool) {
	mu.RLock()
	defer mu.RUnlock()
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	jobsProcessed.WithLabelValues(hook, outcome).Inc()
}

// ObserveWebhookRequest records an inbound webhook request's outcome at the
// front-end (enqueued, ignored, invalid, or the error kind of a rejected
// request such as hook_not_found or backpressure).
func ObserveWebhookRequest(hook, result string) {
	mu.RLock()
	defer mu.RUnlock()
	webhookRequests.WithLabelValues(hook, result).Inc()
}

// Handler returns the Prometheus exposition HTTP handler for GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Reset clears all recorded series. Used only by tests to isolate runs.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	queueDepth.Reset()
	dispatchLatency.Reset()
	jobsProcessed.Reset()
	webhookRequests.Reset()
}
