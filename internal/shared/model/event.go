// Package model 定义核心数据模型
//
// event.go 包含事件相关的数据模型定义：
//   - Event：Run 的追加式事件记录（数据库存储）
//   - EventLevel：事件级别枚举
//   - 事件消息标签常量与进度事件判定
package model

import (
	"encoding/json"
	"time"
)

// ============================================================================
// EventLevel - 事件级别
// ============================================================================

// EventLevel 事件级别
type EventLevel string

const (
	EventLevelInfo  EventLevel = "INFO"
	EventLevelWarn  EventLevel = "WARN"
	EventLevelError EventLevel = "ERROR"
)

// ============================================================================
// 事件消息标签
// ============================================================================

// 事件的 message 字段是一个短决策标签，跨 tick 的活跃度判定
// 建立在这些标签之上，因此写入方必须使用统一常量。
//
// 进度类标签（流水线执行器写入，表示 Run 在推进）：
const (
	// EventRunStarted 执行开始
	EventRunStarted = "run_started"

	// EventStepStarted 步骤开始
	EventStepStarted = "step_started"

	// EventStepCompleted 步骤完成
	EventStepCompleted = "step_completed"

	// EventStepProgress 步骤内增量进度（如导出分页推进）
	EventStepProgress = "step_progress"

	// EventRunYielded 执行器主动让出控制权，等待下一次 tick 续跑
	EventRunYielded = "run_yielded"

	// EventStepRetryScheduled 步骤失败后安排了步骤内重试
	EventStepRetryScheduled = "step_retry_scheduled"

	// EventRunCompleted 执行结束（终态由状态字段体现）
	EventRunCompleted = "run_completed"
)

// 决策类标签（调度器写入，记录每个 tick 的处置）：
const (
	// EventResumeTriggered 对停滞的 Run 发起了 resume 调用。
	// 计入活跃度：刚被 resume 的 Run 在下一个活跃窗口内不再被打扰。
	EventResumeTriggered = "resume_triggered"

	// EventResumeFailed resume 调用失败（传输错误等，不改变 Run 状态）
	EventResumeFailed = "resume_failed"

	// EventTimeoutMarked Run 被标记为超时
	EventTimeoutMarked = "timeout_marked"

	// EventRunFinalized Run 被幂等收尾
	EventRunFinalized = "run_finalized"

	// EventRetryStarted 安排了新的重试执行
	EventRetryStarted = "retry_started"

	// EventSyncStarted 到期检查通过，启动了新的定时执行
	EventSyncStarted = "sync_started"

	// EventScheduleDisabled 连续永久失败，自动停用了排程
	EventScheduleDisabled = "schedule_disabled"

	// EventMultiRunningCleanup 多个 running Run 的异常清理
	EventMultiRunningCleanup = "multi_running_cleanup"

	// EventCancelRequested 操作员请求取消
	EventCancelRequested = "cancel_requested"
)

// 诊断类标签（噪音，不计入活跃度）：
const (
	// EventTickAuthFailed tick 鉴权失败（活跃 Run 上的告警）
	EventTickAuthFailed = "tick_auth_failed"

	// EventResumeSkippedActive 活跃窗口内跳过 resume
	EventResumeSkippedActive = "resume_skipped_active_window"

	// EventResumeSkippedStall 停滞观察窗口内跳过 resume
	EventResumeSkippedStall = "resume_skipped_within_stall_window"

	// EventResumeSkippedRetryWait 步骤重试等待期内跳过 resume
	EventResumeSkippedRetryWait = "resume_skipped_retry_wait"

	// EventTickError tick 内部错误
	EventTickError = "tick_error"
)

// diagnosticMessages 不计入活跃度判定的消息标签
//
// 活跃度 = "距最近一条进度事件的时间"。调度器自身写入的跳过/鉴权/
// 错误事件若计入进度，会让一个已死的 Run 永远显得活跃。
// resume_failed 同理：失败的 resume 没有推进任何工作，若计入进度，
// 执行器宕机的 Run 会被反复 resume 而永远到不了空闲超时。
var diagnosticMessages = map[string]bool{
	EventTickAuthFailed:         true,
	EventResumeFailed:           true,
	EventResumeSkippedActive:    true,
	EventResumeSkippedStall:     true,
	EventResumeSkippedRetryWait: true,
	EventTickError:              true,
}

// DiagnosticEventMessages 返回诊断类标签列表，供存储层构造活跃度排除查询
func DiagnosticEventMessages() []string {
	return []string{
		EventTickAuthFailed,
		EventResumeFailed,
		EventResumeSkippedActive,
		EventResumeSkippedStall,
		EventResumeSkippedRetryWait,
		EventTickError,
	}
}

// ============================================================================
// Event - 执行事件（数据库存储）
// ============================================================================

// Event 表示 Run 生命周期中追加的一条事件
//
// 事件是调度器跨 tick 的唯一记忆：
//   - 活跃度判定：以最近一条进度事件的时间衡量 Run 是否停滞
//   - 审计追溯：每个 tick 的决策先落事件，再写响应
//   - 实时监控：通过 Redis Stream 推送到 WebSocket 网关
//
// 字段说明：
//   - ID：自增主键
//   - RunID：所属 Run ID
//   - Level：INFO / WARN / ERROR
//   - Message：短决策标签（上方常量）
//   - Details：结构化键值对（JSON）
type Event struct {
	ID        int64           `json:"id" bson:"id" db:"id"`
	RunID     string          `json:"run_id" bson:"run_id" db:"run_id"`
	Level     EventLevel      `json:"level" bson:"level" db:"level"`
	Message   string          `json:"message" bson:"message" db:"message"`
	Details   json.RawMessage `json:"details,omitempty" bson:"details,omitempty" db:"details"`
	CreatedAt time.Time       `json:"created_at" bson:"created_at" db:"created_at"`
}

// IsProgress 判断事件是否计入活跃度
func (e *Event) IsProgress() bool {
	return !diagnosticMessages[e.Message]
}

// IsYield 判断事件是否表示执行器主动让出
func (e *Event) IsYield() bool {
	return e.Message == EventRunYielded
}

// NewEvent 构造一条事件记录，details 序列化失败时置空
func NewEvent(runID string, level EventLevel, message string, details map[string]any) *Event {
	var raw json.RawMessage
	if len(details) > 0 {
		if b, err := json.Marshal(details); err == nil {
			raw = b
		}
	}
	return &Event{
		RunID:     runID,
		Level:     level,
		Message:   message,
		Details:   raw,
		CreatedAt: time.Now().UTC(),
	}
}
