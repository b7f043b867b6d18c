// Package notify 执行结束的 Webhook 通知
//
// Run 到达终态（收尾、超时、自动停用）后调度器向配置的 webhook
// 推送一条 JSON 通知。通知是尽力而为的：超时或失败只记录 WARN
// 日志并丢弃，绝不影响调度决策本身。
package notify

import (
	"context"
	"time"

	"catalog-sync/internal/shared/model"
)

// Payload 通知载荷
type Payload struct {
	RunID      string          `json:"run_id"`
	Status     model.RunStatus `json:"status"`
	Error      *string         `json:"error,omitempty"`
	Attempt    int             `json:"attempt"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// NewPayload 从 Run 构造通知载荷
func NewPayload(run *model.Run) *Payload {
	return &Payload{
		RunID:      run.ID,
		Status:     run.Status,
		Error:      run.ErrorMessage,
		Attempt:    run.Attempt,
		FinishedAt: run.FinishedAt,
	}
}

// Notifier 通知接口
type Notifier interface {
	// NotifyRunFinished 推送执行结束通知（尽力而为，不返回错误）
	NotifyRunFinished(ctx context.Context, p *Payload)
}
