package orchestrator

import "time"

// Tick 响应状态，固定词表
const (
	StatusSkipped             = "skipped"
	StatusResumeTriggered     = "resume_triggered"
	StatusResumeSkippedActive = "resume_skipped_active_window"
	StatusResumeSkippedStall  = "resume_skipped_within_stall_window"
	StatusTimeoutMarked       = "timeout_marked"
	StatusRetryStarted        = "retry_started"
	StatusSyncStarted         = "sync_started"
	StatusFinalized           = "finalized"
	StatusMaxAttemptsExceeded = "max_attempts_exceeded"
	StatusError               = "error"
)

// 跳过与超时的 reason 取值
const (
	ReasonAuth          = "auth"
	ReasonDisabled      = "disabled"
	ReasonNotDue        = "not_due"
	ReasonRetryDelay    = "retry_delay"
	ReasonStepRetryWait = "step_retry_wait"
	ReasonHardTimeout   = "hard_timeout"
	ReasonIdleTimeout   = "idle_timeout"
)

// TickResult 单次 tick 的决策结果
//
// Status 来自固定词表；RunID/Reason/WaitSeconds/Message 按需填充。
// 结果同时是 HTTP 响应体，字段名即对外契约。
type TickResult struct {
	Status      string `json:"status"`
	RunID       string `json:"run_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	WaitSeconds int    `json:"wait_seconds,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Thresholds 活跃度判定阈值
//
// 硬超时阈值不在这里：它派生自排程配置的 run_timeout_minutes（两倍）。
type Thresholds struct {
	ActiveWindow  time.Duration // 最近进展视为活跃的窗口
	StallWindow   time.Duration // 活跃与停滞之间的观望窗口
	IdleTimeout   time.Duration // 无任何进展判定超时
	YieldDebounce time.Duration // run_yielded 去抖
}

// DefaultThresholds 默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		ActiveWindow:  60 * time.Second,
		StallWindow:   180 * time.Second,
		IdleTimeout:   30 * time.Minute,
		YieldDebounce: 5 * time.Second,
	}
}

// validate 把零值字段收敛到默认阈值
func (t *Thresholds) validate() {
	def := DefaultThresholds()
	if t.ActiveWindow <= 0 {
		t.ActiveWindow = def.ActiveWindow
	}
	if t.StallWindow <= 0 {
		t.StallWindow = def.StallWindow
	}
	if t.IdleTimeout <= 0 {
		t.IdleTimeout = def.IdleTimeout
	}
	if t.YieldDebounce <= 0 {
		t.YieldDebounce = def.YieldDebounce
	}
}

// waitSeconds 把剩余等待时长换算成响应里的整数秒（向上取整，至少 1）
func waitSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		s = 1
	}
	return s
}
