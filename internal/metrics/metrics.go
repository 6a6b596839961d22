// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// キャッシュ層とハンドラー層から利用する。
type MetricsCollector interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordFetchSuccess()
	RecordFetchFailure()
	RecordFetchLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordAppointmentsServed(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheHit           prometheus.Counter
	cacheMiss          prometheus.Counter
	fetchSuccess       prometheus.Counter
	fetchFail          prometheus.Counter
	fetchLatency       prometheus.Histogram
	httpStatus         *prometheus.CounterVec
	appointmentsServed prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_cache_hit_total",
			Help: "キャッシュヒットの合計数",
		}),
		cacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_cache_miss_total",
			Help: "キャッシュミス（上流フェッチ発動）の合計数",
		}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_fetch_success_total",
			Help: "上流カレンダーフェッチ成功の合計数",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_fetch_fail_total",
			Help: "上流カレンダーフェッチ失敗の合計数",
		}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "calman_fetch_latency_seconds",
			Help:    "上流カレンダーフェッチのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "calman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		appointmentsServed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "calman_appointments_served_total",
			Help: "APIレスポンスに載せた予定の合計数",
		}),
	}

	reg.MustRegister(
		c.cacheHit,
		c.cacheMiss,
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.httpStatus,
		c.appointmentsServed,
	)

	return c
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHit.Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMiss.Inc()
}

// RecordFetchSuccess は上流フェッチ成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure は上流フェッチ失敗を記録する。
func (c *Collector) RecordFetchFailure() {
	c.fetchFail.Inc()
}

// RecordFetchLatency は上流フェッチのレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordAppointmentsServed はレスポンスに載せた予定数を記録する。
func (c *Collector) RecordAppointmentsServed(count int) {
	c.appointmentsServed.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
