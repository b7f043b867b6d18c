// Package model 定义核心数据模型
//
// run.go 包含同步执行相关的数据模型定义：
//   - Run：目录同步流水线的单次执行实例
//   - RunStatus：执行状态枚举
//   - TriggerType：触发方式枚举
package model

import (
	"time"
)

// ============================================================================
// RunStatus - 执行状态
// ============================================================================

// RunStatus 表示单次同步执行（Run）的状态
//
// Run 由流水线执行器创建并推进，调度器只做三类状态写入：
// 强制超时（timeout）、幂等收尾（success / success_with_warning）、
// 以及多活清理。状态只允许向前迁移：
//
//	running → success / success_with_warning / failed / timeout / cancelled
//
// 终态不可变，唯一例外是幂等收尾路径（条件写，仅在仍为 running 时生效）。
type RunStatus string

const (
	// RunStatusRunning 执行中：流水线正在（或声称正在）推进
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess 成功：所有步骤完成且无警告
	RunStatusSuccess RunStatus = "success"

	// RunStatusSuccessWithWarning 成功但有警告：步骤完成，存在非致命警告
	RunStatusSuccessWithWarning RunStatus = "success_with_warning"

	// RunStatusFailed 失败：流水线报告了不可继续的错误
	RunStatusFailed RunStatus = "failed"

	// RunStatusTimeout 超时：调度器判定执行停滞或超出硬性时限
	RunStatusTimeout RunStatus = "timeout"

	// RunStatusCancelled 已取消：用户或系统取消了此次执行
	RunStatusCancelled RunStatus = "cancelled"
)

// ============================================================================
// TriggerType - 触发方式
// ============================================================================

// TriggerType 表示 Run 的触发来源
//
// 调度判定（到期检查、重试、自动停用）只统计 scheduled 触发的 Run；
// manual 触发的 Run 参与活跃度判定，但不影响排程历史。
type TriggerType string

const (
	// TriggerTypeScheduled 定时触发：由外部定时器经 tick 入口启动
	TriggerTypeScheduled TriggerType = "scheduled"

	// TriggerTypeManual 手动触发：操作员在控制台点击"立即同步"
	TriggerTypeManual TriggerType = "manual"
)

// ============================================================================
// Run - 执行实例
// ============================================================================

// Run 表示目录同步流水线的一次执行
//
// 每个 Run 记录一次完整的 解析 → 定价 → 映射 → 导出 → 上传 流程：
//   - Run 由流水线执行器创建，调度器从不插入 Run 行
//   - Run 产生事件流（Events），活跃度以"最近一条进度事件"衡量
//   - Attempt 从 1 开始；attempt=1 的 scheduled Run 称为主执行，
//     是到期检查与失败链分析的统计对象
//
// 字段说明：
//   - ID：唯一标识符，格式如 "run-a1b2c3d4"
//   - Steps：步骤名 → 步骤状态（见 step.go，存储层校验其形状）
//   - WarningCount：步骤累计的非致命警告数，收尾时决定最终状态
//   - CancelRequested：操作员请求取消（协作式，由执行器在步骤间检查）
//   - CancelledByUser：终态为 cancelled 时区分用户取消与系统取消
type Run struct {
	ID              string      `json:"id" bson:"_id" db:"id"`
	Status          RunStatus   `json:"status" bson:"status" db:"status"`
	TriggerType     TriggerType `json:"trigger_type" bson:"trigger_type" db:"trigger_type"`
	Attempt         int         `json:"attempt" bson:"attempt" db:"attempt"`
	Steps           Steps       `json:"steps" bson:"steps" db:"steps"`
	WarningCount    int         `json:"warning_count" bson:"warning_count" db:"warning_count"`
	CancelRequested bool        `json:"cancel_requested" bson:"cancel_requested" db:"cancel_requested"`
	CancelledByUser bool        `json:"cancelled_by_user" bson:"cancelled_by_user" db:"cancelled_by_user"`
	ErrorMessage    *string     `json:"error_message,omitempty" bson:"error_message,omitempty" db:"error_message"`
	StartedAt       time.Time   `json:"started_at" bson:"started_at" db:"started_at"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty" bson:"finished_at,omitempty" db:"finished_at"`
	RuntimeMS       *int64      `json:"runtime_ms,omitempty" bson:"runtime_ms,omitempty" db:"runtime_ms"`
	CreatedAt       time.Time   `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// ============================================================================
// 辅助方法
// ============================================================================

// IsTerminal 判断 Run 是否处于终止状态
func (r *Run) IsTerminal() bool {
	switch r.Status {
	case RunStatusSuccess, RunStatusSuccessWithWarning, RunStatusFailed,
		RunStatusTimeout, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// IsRunning 判断 Run 是否正在运行
func (r *Run) IsRunning() bool {
	return r.Status == RunStatusRunning
}

// IsSuccess 判断 Run 是否成功结束（含带警告的成功）
func (r *Run) IsSuccess() bool {
	return r.Status == RunStatusSuccess || r.Status == RunStatusSuccessWithWarning
}

// CanRetry 判断 Run 的终态是否允许安排重试
func (r *Run) CanRetry() bool {
	return r.Status == RunStatusFailed || r.Status == RunStatusTimeout
}

// IsPrimary 判断是否为主执行（定时触发的第一次尝试）
func (r *Run) IsPrimary() bool {
	return r.TriggerType == TriggerTypeScheduled && r.Attempt == 1
}

// Age 返回 Run 自启动以来经过的时间
func (r *Run) Age(now time.Time) time.Duration {
	return now.Sub(r.StartedAt)
}

// FinalStatus 根据累计警告数给出收尾终态
func (r *Run) FinalStatus() RunStatus {
	if r.WarningCount > 0 {
		return RunStatusSuccessWithWarning
	}
	return RunStatusSuccess
}
