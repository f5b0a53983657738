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
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordAuthOutcome(operation string, success bool)
	RecordSessionCheckLatency(duration time.Duration)
	RecordTimeout(operation string)
	RecordEventMutation(operation string)
	RecordOptimisticRevert(operation string)
	RecordHTTPStatus(statusCode int)
	RecordStreamSubscribers(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authOutcome       *prometheus.CounterVec
	sessionLatency    prometheus.Histogram
	timeouts          *prometheus.CounterVec
	eventMutations    *prometheus.CounterVec
	optimisticReverts *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	streamSubscribers prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "familycal_auth_outcome_total",
			Help: "認証プロバイダー呼び出しの操作・成否別の合計数",
		}, []string{"operation", "outcome"}),
		sessionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "familycal_session_check_latency_seconds",
			Help:    "セッション検証のレイテンシ（秒）",
			Buckets: []float64{0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2},
		}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "familycal_timeout_total",
			Help: "操作別のタイムアウト発生数",
		}, []string{"operation"}),
		eventMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "familycal_event_mutation_total",
			Help: "予定の作成・更新・削除の操作別合計数",
		}, []string{"operation"}),
		optimisticReverts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "familycal_optimistic_revert_total",
			Help: "楽観的反映の巻き戻し回数",
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "familycal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		streamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "familycal_stream_subscribers",
			Help: "現在の変更通知ストリーム購読者数",
		}),
	}

	reg.MustRegister(
		c.authOutcome,
		c.sessionLatency,
		c.timeouts,
		c.eventMutations,
		c.optimisticReverts,
		c.httpStatus,
		c.streamSubscribers,
	)

	return c
}

// RecordAuthOutcome は認証プロバイダー呼び出しの成否を記録する。
func (c *Collector) RecordAuthOutcome(operation string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.authOutcome.WithLabelValues(operation, outcome).Inc()
}

// RecordSessionCheckLatency はセッション検証のレイテンシを記録する。
func (c *Collector) RecordSessionCheckLatency(duration time.Duration) {
	c.sessionLatency.Observe(duration.Seconds())
}

// RecordTimeout は操作のタイムアウトを記録する。
func (c *Collector) RecordTimeout(operation string) {
	c.timeouts.WithLabelValues(operation).Inc()
}

// RecordEventMutation は予定の変更操作を記録する。
func (c *Collector) RecordEventMutation(operation string) {
	c.eventMutations.WithLabelValues(operation).Inc()
}

// RecordOptimisticRevert は楽観的反映の巻き戻しを記録する。
func (c *Collector) RecordOptimisticRevert(operation string) {
	c.optimisticReverts.WithLabelValues(operation).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordStreamSubscribers は現在の購読者数を記録する。
func (c *Collector) RecordStreamSubscribers(count int) {
	c.streamSubscribers.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
