// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalog-sync/internal/apiserver/orchestrator"
	"catalog-sync/internal/shared/model"
)

// Metrics 包含所有 API Server 指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// 调度 tick 指标
	TickDecisionsTotal *prometheus.CounterVec
	TickDuration       prometheus.Histogram

	// Run 收尾指标
	RunsFinalizedTotal *prometheus.CounterVec

	// WebSocket 指标
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec
}

// NewMetrics 创建指标实例并注册到默认 Registry
func NewMetrics(namespace string) *Metrics {
	return newMetrics(namespace, prometheus.DefaultRegisterer)
}

// newMetrics 在指定 Registry 上创建指标，测试用独立 Registry 避免重复注册
func newMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		TickDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tick_decisions_total",
				Help:      "Total scheduler tick decisions by status",
			},
			[]string{"status"},
		),
		TickDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tick_duration_seconds",
				Help:      "Scheduler tick duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		RunsFinalizedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_finalized_total",
				Help:      "Total runs finalized by terminal status",
			},
			[]string{"status"},
		),
		WSConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections_active",
				Help:      "Active WebSocket connections",
			},
		),
		WSMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_messages_total",
				Help:      "Total WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}
}

// 确保 Metrics 实现了 orchestrator.TickObserver 接口
var _ orchestrator.TickObserver = (*Metrics)(nil)

// ObserveTick 记录一次 tick 决策
//
// finalized 结果的 Message 携带 Run 的最终状态；timeout_marked 本身
// 就是一种收尾，计入 timeout。
func (m *Metrics) ObserveTick(result *orchestrator.TickResult, elapsed time.Duration) {
	m.TickDecisionsTotal.WithLabelValues(result.Status).Inc()
	m.TickDuration.Observe(elapsed.Seconds())

	switch result.Status {
	case orchestrator.StatusFinalized:
		m.RunsFinalizedTotal.WithLabelValues(result.Message).Inc()
	case orchestrator.StatusTimeoutMarked:
		m.RunsFinalizedTotal.WithLabelValues(string(model.RunStatusTimeout)).Inc()
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath 把路径里的 Run ID 折叠成占位符，控制标签基数
//
// 例如 /api/v1/runs/run-123/events -> /api/v1/runs/{id}/events。
// /api/v1/runs/trigger 是字面路由，不折叠。
func normalizePath(path string) string {
	const runPrefix = "/api/v1/runs/"
	if !strings.HasPrefix(path, runPrefix) {
		return path
	}
	rest := strings.TrimPrefix(path, runPrefix)
	if rest == "" || rest == "trigger" {
		return path
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return runPrefix + "{id}" + rest[i:]
	}
	return runPrefix + "{id}"
}

// MetricsHandler 返回 Prometheus HTTP Handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordWSMessage 记录 WebSocket 消息
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// WSConnectionOpened WebSocket 连接打开
func (m *Metrics) WSConnectionOpened() {
	m.WSConnectionsActive.Inc()
}

// WSConnectionClosed WebSocket 连接关闭
func (m *Metrics) WSConnectionClosed() {
	m.WSConnectionsActive.Dec()
}
