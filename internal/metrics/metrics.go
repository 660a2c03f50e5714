// Package metrics 汇总缓存命中、回源与存储失败的 Prometheus 指标。
// 每个 Recorder 持有独立 Registry，避免测试之间共享全局状态。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 请求终态，与代理层状态机一一对应。
const (
	OutcomeServedCached   = "served_cached"
	OutcomeServedFetched  = "served_fetched"
	OutcomeServedNotFound = "served_not_found"
	OutcomeStored         = "stored"
	OutcomeStoreError     = "store_error"
	OutcomeDeleted        = "deleted"
	OutcomeDeleteMiss     = "delete_miss"
	OutcomeMethodRejected = "method_rejected"
	OutcomeInvalidCode    = "invalid_code"
	OutcomeInternalError  = "internal_error"
)

// 回源结果。
const (
	FetchOK          = "ok"
	FetchUnavailable = "unavailable"
)

// Recorder 记录请求终态与回源耗时；nil Recorder 的方法均为空操作。
type Recorder struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	populateFails prometheus.Counter
}

// NewRecorder 创建带独立 Registry 的 Recorder，并注册 Go 运行时指标。
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "status_hub",
			Name:      "requests_total",
			Help:      "Requests by method and terminal outcome.",
		}, []string{"method", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "status_hub",
			Name:      "upstream_fetch_total",
			Help:      "Upstream fetch attempts by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "status_hub",
			Name:      "upstream_fetch_seconds",
			Help:      "Upstream fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		populateFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "status_hub",
			Name:      "cache_populate_failures_total",
			Help:      "Fetched images that could not be written to the cache.",
		}),
	}
	r.registry.MustRegister(
		r.requests,
		r.fetches,
		r.fetchDuration,
		r.populateFails,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRequest 记录一次请求终态。
func (r *Recorder) ObserveRequest(method, outcome string) {
	if r == nil {
		return
	}
	r.requests.WithLabelValues(method, outcome).Inc()
}

// ObserveFetch 记录一次回源结果与耗时。
func (r *Recorder) ObserveFetch(result string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(result).Inc()
	r.fetchDuration.Observe(elapsed.Seconds())
}

// ObservePopulateFailure 记录一次回源后写缓存失败。
func (r *Recorder) ObservePopulateFailure() {
	if r == nil {
		return
	}
	r.populateFails.Inc()
}

// Registry 暴露底层 Registry，便于测试直接读取指标。
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler 返回 Prometheus 文本格式的 http.Handler。
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
