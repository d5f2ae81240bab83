package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpDurationHistogram     *prometheus.HistogramVec
	transferCounter           *prometheus.CounterVec
	compensationFailedCounter prometheus.Counter
	callbackCounter           *prometheus.CounterVec
	idempotencyCounter        *prometheus.CounterVec
	cacheCounter              *prometheus.CounterVec
	loginCounter              *prometheus.CounterVec
	stalePendingGauge         prometheus.Gauge
	workerRunCounter          *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfers_total",
			Help: "Transfer outcomes",
		}, []string{"result"})

		compensationFailedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compensation_failures_total",
			Help: "Transfers whose sender re-credit failed after a debit",
		})

		callbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mpesa_callbacks_total",
			Help: "Payment provider callback outcomes",
		}, []string{"outcome"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		cacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations by namespace and result",
		}, []string{"namespace", "op", "result"})

		loginCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "login_attempts_total",
			Help: "Login attempts by result",
		}, []string{"result"})

		stalePendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mpesa_stale_pending_deposits",
			Help: "External deposits still pending past the expected callback window",
		})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferCounter,
			compensationFailedCounter,
			callbackCounter,
			idempotencyCounter,
			cacheCounter,
			loginCounter,
			stalePendingGauge,
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

func IncrementTransfer(result string) {
	if transferCounter == nil {
		return
	}
	transferCounter.WithLabelValues(result).Inc()
}

func IncrementCompensationFailure() {
	if compensationFailedCounter == nil {
		return
	}
	compensationFailedCounter.Inc()
}

func IncrementCallback(outcome string) {
	if callbackCounter == nil {
		return
	}
	callbackCounter.WithLabelValues(outcome).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementCacheOp(namespace, op, result string) {
	if cacheCounter == nil {
		return
	}
	cacheCounter.WithLabelValues(namespace, op, result).Inc()
}

func IncrementLogin(result string) {
	if loginCounter == nil {
		return
	}
	loginCounter.WithLabelValues(result).Inc()
}

func SetStalePendingDeposits(n int64) {
	if stalePendingGauge == nil {
		return
	}
	stalePendingGauge.Set(float64(n))
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
