package orchestrator

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"catalog-sync/internal/shared/model"
)

// TickTokenHeader 外部定时器携带共享密钥的 header
const TickTokenHeader = "X-Tick-Token"

// ============================================================================
// HTTP 入口
// ============================================================================

// Handler 调度 tick 的 HTTP 入口
//
// 外部定时器（systemd timer / cron / k8s CronJob）按固定节奏 POST
// tick 端点，共享密钥放在 X-Tick-Token header。响应体就是 TickResult。
type Handler struct {
	orchestrator *Orchestrator
	tickToken    string
	clock        func() time.Time
	observer     TickObserver
}

// TickObserver 旁观每次 tick 的决策结果，指标采集用。实现不得阻塞。
type TickObserver interface {
	ObserveTick(result *TickResult, elapsed time.Duration)
}

// NewHandler 创建 tick 入口处理器
func NewHandler(orchestrator *Orchestrator, tickToken string) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		tickToken:    tickToken,
		clock:        func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver 挂接 tick 观察者
func (h *Handler) SetObserver(observer TickObserver) {
	h.observer = observer
}

// SetClock 替换基准时钟，集成测试以虚拟时钟驱动 tick
func (h *Handler) SetClock(clock func() time.Time) {
	h.clock = clock
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/scheduler/tick", h.handleTick)
}

// handleTick 处理一次外部 tick
//
// POST /api/v1/scheduler/tick
//
// 基准时刻在入口处取一次，整条决策链共用。内部错误返回 500，
// 让外部定时器的监控能看到失败的 tick；其余决策一律 200。
func (h *Handler) handleTick(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	if !h.authorize(r) {
		h.recordAuthFailure(r.Context(), now, r.Header.Get(TickTokenHeader))
		writeJSON(w, http.StatusUnauthorized, &TickResult{Status: StatusError, Reason: ReasonAuth})
		return
	}

	result := h.runTick(r.Context())

	code := http.StatusOK
	if result.Status == StatusError {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, result)
}

// runTick 执行一次 tick，旁路观察者与日志都在这里收口
func (h *Handler) runTick(ctx context.Context) *TickResult {
	now := h.clock()
	started := time.Now()
	result := h.orchestrator.Tick(ctx, now)
	elapsed := time.Since(started)
	if h.observer != nil {
		h.observer.ObserveTick(result, elapsed)
	}
	log.Printf("[scheduler.tick.finish] status=%s run_id=%s reason=%s elapsed_ms=%d",
		result.Status, result.RunID, result.Reason, elapsed.Milliseconds())
	return result
}

// authorize 校验共享密钥；服务端未配置 token 时拒绝一切请求
func (h *Handler) authorize(r *http.Request) bool {
	if h.tickToken == "" {
		return false
	}
	return r.Header.Get(TickTokenHeader) == h.tickToken
}

// recordAuthFailure 在活跃 Run 的事件流里留下鉴权失败痕迹
//
// 外部定时器的密钥配置漂移最容易在"有执行却没人管"时被发现，
// 所以痕迹挂在活跃 Run 上。鉴权失败永远不会停用排程。
func (h *Handler) recordAuthFailure(ctx context.Context, now time.Time, presented string) {
	// 只记录长度与有无，便于区分漏配、截断与错配，密钥本身不落日志
	shape := "present"
	if presented == "" {
		shape = "missing"
	}
	running, err := h.orchestrator.store.ListRunningRuns(ctx)
	if err != nil || len(running) == 0 {
		log.Printf("[scheduler.tick.auth_failed] active_run=none token=%s token_len=%d", shape, len(presented))
		return
	}
	h.orchestrator.recordEvent(ctx, now, running[0].ID, model.EventLevelWarn, model.EventTickAuthFailed, nil)
	log.Printf("[scheduler.tick.auth_failed] active_run=%s token=%s token_len=%d", running[0].ID, shape, len(presented))
}

// ============================================================================
// 工具函数
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
