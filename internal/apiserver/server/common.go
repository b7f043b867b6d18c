// Package server HTTP API 的组装层
//
// 本包把各领域独立包拼成一个可运行的 API Server：
//   - 路由分发与中间件链（指标 / 认证 / CORS）
//   - WebSocket 事件网关
//   - Prometheus 指标
//
// 文件组织：
//   - common.go: Handler 定义与通用工具函数
//   - handler.go: 路由配置
//   - websocket.go: WebSocket 事件网关
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"catalog-sync/internal/apiserver/auth"
	"catalog-sync/internal/apiserver/orchestrator"
	"catalog-sync/internal/pipeline"
	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/objstore"
	"catalog-sync/internal/shared/storage"
	"catalog-sync/pkg/logging"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到各领域包的处理函数
//   - 组装中间件链
//   - 协调调度入口、事件网关与指标
//
// 可选依赖通过 Set* 方法注入：事件总线缺席时 WebSocket 网关降级
// 轮询数据库，报告归档缺席时报告接口返回 404。
type Handler struct {
	store    storage.Store     // 持久化存储层
	executor pipeline.Executor // 流水线执行器客户端

	tick *orchestrator.Handler // 调度 tick 入口

	runBus  eventbus.RunEventBus // Run 事件流（WebSocket 推送）
	reports *objstore.Client     // 报告归档（MinIO）

	authCfg auth.Config // 认证配置

	// 内部组件
	eventGateway *EventGateway   // WebSocket 事件网关
	metrics      *Metrics        // Prometheus 指标
	accessLog    *logging.Logger // HTTP 访问日志（可选）
}

// NewHandler 创建 Handler 实例
//
// tick 入口的指标观察者在这里挂接，tick 决策计数随 HTTP 指标
// 一起从 /metrics 导出。
func NewHandler(store storage.Store, executor pipeline.Executor, tick *orchestrator.Handler) *Handler {
	h := &Handler{
		store:    store,
		executor: executor,
		tick:     tick,
	}
	h.metrics = NewMetrics("catalog_sync")
	h.eventGateway = NewEventGateway(store, nil)
	h.eventGateway.metrics = h.metrics
	if tick != nil {
		tick.SetObserver(h.metrics)
	}
	return h
}

// SetRunEventBus 设置 Run 事件总线（WebSocket 实时推送数据源）
func (h *Handler) SetRunEventBus(bus eventbus.RunEventBus) {
	h.runBus = bus
	h.eventGateway.SetEventBus(bus)
}

// SetReportArchive 设置报告归档客户端
func (h *Handler) SetReportArchive(reports *objstore.Client) {
	h.reports = reports
}

// SetAuthConfig 设置认证配置
func (h *Handler) SetAuthConfig(cfg auth.Config) {
	h.authCfg = cfg
	h.eventGateway.SetAuthConfig(cfg)
}

// SetAccessLogger 设置 HTTP 访问日志器
func (h *Handler) SetAccessLogger(l *logging.Logger) {
	h.accessLog = l
}

// accessLogMiddleware 每个请求记一条结构化访问日志
func (h *Handler) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		h.accessLog.HTTPRequestLog(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start), clientIP(r))
	})
}

// clientIP 提取客户端地址，优先使用反向代理透传的 X-Forwarded-For
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Health 健康检查接口
//
// 路由: GET /health, GET /api/v1/health
//
// 用于负载均衡器和外部定时器的存活探测。
// 返回 {"status": "ok"} 表示服务正常运行。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
