// Package server 路由配置
//
// 本文件定义 HTTP API 路由，将请求分发到各领域独立包。
package server

import (
	"net/http"

	"catalog-sync/api"
	"catalog-sync/internal/apiserver/auth"
	"catalog-sync/internal/apiserver/run"
	"catalog-sync/internal/apiserver/schedule"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health            - 服务健康检查（负载均衡器）
//   - GET /api/v1/health     - 服务健康检查（统一前缀）
//
// 调度 (Scheduler):
//   - POST /api/v1/scheduler/tick - 外部定时器 tick 入口
//
// 执行管理 (Run):
//   - GET  /api/v1/runs              - 列出执行记录
//   - GET  /api/v1/runs/{id}         - 获取执行详情
//   - GET  /api/v1/runs/{id}/events  - 获取事件列表
//   - GET  /api/v1/runs/{id}/report  - 下载执行报告
//   - POST /api/v1/runs/{id}/cancel  - 请求取消执行
//   - POST /api/v1/runs/trigger      - 手动触发执行
//
// 排程配置 (Schedule):
//   - GET /api/v1/schedule - 获取排程配置
//   - PUT /api/v1/schedule - 更新排程配置
//
// 认证 (Auth):
//   - POST /api/v1/auth/login    - 登录
//   - POST /api/v1/auth/refresh  - 刷新令牌
//   - GET  /api/v1/auth/me       - 当前用户信息
//   - PUT  /api/v1/auth/password - 修改密码
//   - POST /api/v1/auth/users    - 创建用户（管理员）
//   - GET  /api/v1/auth/users    - 列出用户（管理员）
//
// WebSocket:
//   - GET /ws/runs/{id}/events - 实时事件推送
//
// 可观测性与文档:
//   - GET /metrics             - Prometheus 指标
//   - GET /api/v1/openapi.yaml - OpenAPI 描述文件
//   - GET /docs                - API 文档页
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// OpenAPI 描述与文档页
	mux.HandleFunc("GET /api/v1/openapi.yaml", h.OpenAPISpec)
	mux.HandleFunc("GET /docs", h.Docs)

	// 调度 tick 入口
	h.tick.RegisterRoutes(mux)

	// Run 查询与操作接口
	// 归档客户端为空指针时必须传 nil 接口，否则接口层的 nil 判断失效
	var reports run.ReportFetcher
	if h.reports != nil {
		reports = h.reports
	}
	runHandler := run.NewHandler(h.store, h.executor, reports)
	if h.runBus != nil {
		runHandler.SetEventBus(h.runBus)
	}
	runHandler.RegisterRoutes(mux)

	// 排程配置接口
	scheduleHandler := schedule.NewHandler(h.store)
	scheduleHandler.RegisterRoutes(mux)

	// 认证与用户管理接口
	authHandler := auth.NewHandler(h.store, h.authCfg)
	authHandler.RegisterRoutes(mux)

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用认证中间件
	authedHandler := auth.Middleware(h.authCfg)(apiHandler)

	// 应用 CORS 中间件
	restHandler := corsMiddleware(authedHandler)

	// 访问日志（注入后生效）
	if h.accessLog != nil {
		restHandler = h.accessLogMiddleware(restHandler)
	}

	// 顶层路由，WebSocket 绕过 metrics 中间件（包装后的
	// ResponseWriter 不再实现 http.Hijacker，升级会失败）
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/runs/{id}/events", h.eventGateway.HandleWebSocket)
	topMux.Handle("/", restHandler)

	return topMux
}

// OpenAPISpec 返回 OpenAPI 描述文件
//
// 路由: GET /api/v1/openapi.yaml
func (h *Handler) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	data, err := api.OpenAPIFS.ReadFile("openapi/openapi.yaml")
	if err != nil {
		writeError(w, http.StatusNotFound, "openapi spec not available")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.Write(data)
}

// Docs API 文档页（内嵌的 Swagger UI）
//
// 路由: GET /docs
func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	data, err := api.DocsFS.ReadFile("docs/index.html")
	if err != nil {
		writeError(w, http.StatusNotFound, "docs not available")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
