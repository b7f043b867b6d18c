package pipeline

import (
	"time"

	"catalog-sync/internal/shared/model"
)

// Resume 调用返回的执行器状态
const (
	// ResumeStatusYielded 执行器推进了一段后再次让出
	ResumeStatusYielded = "yielded"

	// ResumeStatusRetryDelay 当前步骤在等待步骤内重试
	ResumeStatusRetryDelay = "retry_delay"

	// ResumeStatusCompleted 执行器报告 Run 已全部完成
	ResumeStatusCompleted = "completed"

	// ResumeStatusFailed 执行器报告 Run 失败
	ResumeStatusFailed = "failed"
)

// StartRequest 启动请求
type StartRequest struct {
	TriggerType model.TriggerType `json:"trigger_type"`
	Attempt     int               `json:"attempt"`
}

// StartResponse 启动响应
type StartResponse struct {
	RunID string `json:"run_id"`
}

// ResumeRequest 续跑请求
type ResumeRequest struct {
	RunID string `json:"run_id"`
}

// ResumeResult 续跑结果
type ResumeResult struct {
	Status      string     `json:"status"`
	CurrentStep string     `json:"current_step,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	WaitSeconds int        `json:"wait_seconds,omitempty"`
}
