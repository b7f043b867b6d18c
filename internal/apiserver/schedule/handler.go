// Package schedule 排程配置管理 API
//
// 配置是单例行；操作员在这里读改排程，自动停用策略只会把
// enabled 置 false。每次保存都会刷新 updated_at 并清除
// disabled_reason，这同时把失败链分析的回溯边界推到当下。
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"catalog-sync/internal/apiserver/auth"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// Store 定义 schedule handler 需要的存储接口（用于测试 mock）
type Store interface {
	GetScheduleConfig(ctx context.Context) (*model.ScheduleConfig, error)
	PutScheduleConfig(ctx context.Context, cfg *model.ScheduleConfig) error
}

// Handler 排程配置 HTTP 处理器
type Handler struct {
	store Store
}

// NewHandler 创建排程配置处理器
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册排程配置路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/schedule", h.Get)
	mux.HandleFunc("PUT /api/v1/schedule", auth.AdminOnly(h.Update))
}

// updateRequest PUT /api/v1/schedule 请求体
//
// id / disabled_reason / updated_at 由服务端管理，不接受客户端值。
type updateRequest struct {
	Enabled           bool   `json:"enabled"`
	ScheduleType      string `json:"schedule_type"`
	FrequencyMinutes  int    `json:"frequency_minutes"`
	DailyTime         string `json:"daily_time"`
	MaxAttempts       int    `json:"max_attempts"`
	RetryDelayMinutes int    `json:"retry_delay_minutes"`
	RunTimeoutMinutes int    `json:"run_timeout_minutes"`
}

// Get 读取排程配置
// GET /api/v1/schedule
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.GetScheduleConfig(r.Context())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// 启动时会写入默认配置，这里缺行说明初始化失败
			writeError(w, http.StatusNotFound, "schedule config not initialized")
			return
		}
		log.Printf("[schedule.get.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to load schedule config")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Update 保存排程配置
// PUT /api/v1/schedule
//
// 校验后全量覆盖：max_attempts 封顶、清除 disabled_reason、
// 刷新 updated_at。保存即视为操作员确认，自动停用状态被解除。
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := &model.ScheduleConfig{
		ID:                model.ScheduleConfigID,
		Enabled:           req.Enabled,
		ScheduleType:      model.ScheduleType(req.ScheduleType),
		FrequencyMinutes:  req.FrequencyMinutes,
		DailyTime:         req.DailyTime,
		MaxAttempts:       req.MaxAttempts,
		RetryDelayMinutes: req.RetryDelayMinutes,
		RunTimeoutMinutes: req.RunTimeoutMinutes,
		DisabledReason:    nil,
		UpdatedAt:         time.Now().UTC(),
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.PutScheduleConfig(r.Context(), cfg); err != nil {
		log.Printf("[schedule.update.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to save schedule config")
		return
	}

	log.Printf("[schedule.updated] enabled=%v type=%s by=%s", cfg.Enabled, cfg.ScheduleType, operatorLabel(r))
	writeJSON(w, http.StatusOK, cfg)
}

// ============================================================================
// 工具函数
// ============================================================================

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
