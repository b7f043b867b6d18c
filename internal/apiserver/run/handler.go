// Package run 同步执行记录 - HTTP 处理
//
// 只读查询 + 两个操作员动作（手动触发、协作式取消）。
// Run 行一律由 Pipeline 执行器创建与推进；这里从不直接改状态，
// 取消也只置请求标志，由执行器在步骤间观察后自行落终态。
package run

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"catalog-sync/internal/apiserver/auth"
	"catalog-sync/internal/pipeline"
	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// Store 定义 run handler 需要的存储接口（用于测试 mock）
type Store interface {
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, status string, limit, offset int) ([]*model.Run, error)
	ListRunningRuns(ctx context.Context) ([]*model.Run, error)
	UpdateRunCancel(ctx context.Context, id string, requested, byUser bool) error
	ListEventsByRun(ctx context.Context, runID string, limit, offset int) ([]*model.Event, error)
	AppendEvent(ctx context.Context, event *model.Event) error
}

// ReportFetcher 归档报告读取接口
type ReportFetcher interface {
	DownloadReport(ctx context.Context, runID string) (io.ReadCloser, error)
}

// Handler 执行记录 HTTP 处理器
type Handler struct {
	store    Store
	executor pipeline.Executor
	reports  ReportFetcher        // 可为 nil（未配置对象存储）
	bus      eventbus.RunEventBus // 可为 nil（未接事件总线）
}

// NewHandler 创建执行记录处理器
// reports 参数可选，如果为 nil 则 /report 接口返回 404
func NewHandler(store Store, executor pipeline.Executor, reports ReportFetcher) *Handler {
	return &Handler{store: store, executor: executor, reports: reports}
}

// SetEventBus 设置事件总线，取消事件会实时推给 WebSocket 订阅者
func (h *Handler) SetEventBus(bus eventbus.RunEventBus) {
	h.bus = bus
}

// RegisterRoutes 注册执行相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/runs", h.List)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/runs/{id}/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/runs/{id}/report", h.GetReport)
	mux.HandleFunc("POST /api/v1/runs/trigger", auth.AdminOnly(h.Trigger))
	mux.HandleFunc("POST /api/v1/runs/{id}/cancel", auth.AdminOnly(h.Cancel))
}

// List 列出执行记录
// GET /api/v1/runs?status=&limit=&offset=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	status := r.URL.Query().Get("status")

	runs, err := h.store.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		log.Printf("[run.list.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// Get 获取单个 Run 详情
// GET /api/v1/runs/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		log.Printf("[run.get.failed] run_id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListEvents 列出 Run 的事件流
// GET /api/v1/runs/{id}/events?limit=&offset=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	// 先确认 Run 存在，避免给不存在的 ID 返回空列表
	if _, err := h.store.GetRun(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	events, err := h.store.ListEventsByRun(r.Context(), id, limit, offset)
	if err != nil {
		log.Printf("[run.events.failed] run_id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events, "count": len(events)})
}

// GetReport 读取归档的运行报告
// GET /api/v1/runs/{id}/report
//
// 报告在收尾/超时时归档到对象存储；未归档（Run 仍在执行或
// 归档失败）时返回 404。
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.reports == nil {
		writeError(w, http.StatusNotFound, "report archive not configured")
		return
	}

	rc, err := h.reports.DownloadReport(r.Context(), id)
	if err != nil {
		log.Printf("[run.report.miss] run_id=%s error=%v", id, err)
		writeError(w, http.StatusNotFound, "report not found")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, rc)
}

// Trigger 手动触发一次同步执行
// POST /api/v1/runs/trigger
//
// 有活跃 Run 时拒绝（409），与调度器的单活跃 Run 约束一致。
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	running, err := h.store.ListRunningRuns(ctx)
	if err != nil {
		log.Printf("[run.trigger.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to check running runs")
		return
	}
	if len(running) > 0 {
		log.Printf("[run.trigger.conflict] active_run_id=%s", running[0].ID)
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "a run is already active",
			"run_id": running[0].ID,
		})
		return
	}

	runID, err := h.executor.Start(ctx, &pipeline.StartRequest{
		TriggerType: model.TriggerTypeManual,
		Attempt:     1,
	})
	if err != nil {
		log.Printf("[run.trigger.start.failed] error=%v", err)
		writeError(w, http.StatusBadGateway, "failed to start pipeline")
		return
	}

	operator := operatorLabel(r)
	log.Printf("[run.trigger.success] run_id=%s by=%s", runID, operator)
	writeJSON(w, http.StatusCreated, map[string]string{"run_id": runID})
}

// Cancel 请求取消正在执行的 Run（协作式）
// POST /api/v1/runs/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	run, err := h.store.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	if run.Status != model.RunStatusRunning {
		writeError(w, http.StatusBadRequest, "run is not running")
		return
	}
	if run.CancelRequested {
		// 重复取消幂等返回
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancel_requested"})
		return
	}

	if err := h.store.UpdateRunCancel(ctx, id, true, true); err != nil {
		log.Printf("[run.cancel.failed] run_id=%s error=%v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to request cancel")
		return
	}

	operator := operatorLabel(r)
	event := model.NewEvent(id, model.EventLevelWarn, model.EventCancelRequested, map[string]any{
		"by": operator,
	})
	if err := h.store.AppendEvent(ctx, event); err != nil {
		log.Printf("[run.cancel.event.failed] run_id=%s error=%v", id, err)
	} else {
		h.publishEvent(ctx, event)
	}

	log.Printf("[run.cancel.requested] run_id=%s by=%s", id, operator)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel_requested"})
}

// publishEvent 把事件推送到实时事件流，失败只记日志
func (h *Handler) publishEvent(ctx context.Context, event *model.Event) {
	if h.bus == nil {
		return
	}

	var details map[string]interface{}
	if len(event.Details) > 0 {
		json.Unmarshal(event.Details, &details)
	}
	busEvent := &eventbus.RunEvent{
		RunID:     event.RunID,
		Seq:       event.ID,
		Level:     string(event.Level),
		Message:   event.Message,
		Timestamp: event.CreatedAt,
		Details:   details,
	}
	if err := h.bus.PublishRunEvent(ctx, event.RunID, busEvent); err != nil {
		log.Printf("[run.event.publish.failed] run_id=%s message=%s error=%v",
			event.RunID, event.Message, err)
	}
}

// ============================================================================
// 工具函数
// ============================================================================

// operatorLabel 返回请求发起人的标识（无认证模式返回 "anonymous"）
func operatorLabel(r *http.Request) string {
	if user := auth.GetAuthUser(r.Context()); user != nil {
		if user.Email != "" {
			return user.Email
		}
		return user.ID
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
