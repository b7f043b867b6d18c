// Package model 定义核心数据模型
//
// step.go 包含流水线步骤状态的数据模型定义：
//   - StepState：单个步骤的带标签状态记录
//   - StepStatus：步骤状态枚举
//   - StepRetry：步骤级重试子状态
//   - Steps：步骤名 → 状态 的映射，附带形状校验
package model

import (
	"fmt"
	"time"
)

// ============================================================================
// StepStatus - 步骤状态
// ============================================================================

// StepStatus 表示单个流水线步骤的状态
//
// 与 RunStatus 不同，步骤状态是执行器内部的推进记录；
// 调度器只读取它，用于收尾判定与 resume 前置检查。
type StepStatus string

const (
	// StepStatusPending 待执行
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning 执行中
	StepStatusRunning StepStatus = "running"

	// StepStatusSuccess 成功
	StepStatusSuccess StepStatus = "success"

	// StepStatusWarning 成功但有警告（计入 Run.WarningCount）
	StepStatusWarning StepStatus = "warning"

	// StepStatusFailed 失败
	StepStatusFailed StepStatus = "failed"

	// StepStatusSkipped 跳过（配置关闭了该步骤）
	StepStatusSkipped StepStatus = "skipped"
)

// 规范步骤名，按流水线顺序排列
const (
	StepParse          = "parse"
	StepPrice          = "price"
	StepMapIdentifiers = "map_identifiers"
	StepExport         = "export"
	StepUpload         = "upload"
)

// PipelineSteps 流水线步骤的规范顺序
var PipelineSteps = []string{StepParse, StepPrice, StepMapIdentifiers, StepExport, StepUpload}

// ============================================================================
// StepState - 步骤状态记录
// ============================================================================

// StepRetry 步骤级重试子状态
//
// 执行器在步骤失败后安排步骤内重试时写入；NextRetryAt 未到之前，
// 调度器跳过 resume 调用并报告剩余等待时间。
type StepRetry struct {
	Count       int        `json:"count" bson:"count"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty" bson:"next_retry_at,omitempty"`
	LastError   *string    `json:"last_error,omitempty" bson:"last_error,omitempty"`
}

// StepState 单个步骤的状态记录
type StepState struct {
	Status     StepStatus `json:"status" bson:"status"`
	DurationMS *int64     `json:"duration_ms,omitempty" bson:"duration_ms,omitempty"`
	Retry      *StepRetry `json:"retry,omitempty" bson:"retry,omitempty"`
}

// IsDone 判断步骤是否已成功结束（success/warning/skipped 均视为完成）
func (s StepState) IsDone() bool {
	switch s.Status {
	case StepStatusSuccess, StepStatusWarning, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// WaitingRetryUntil 返回步骤重试等待的截止时间（未处于等待时返回零值）
func (s StepState) WaitingRetryUntil() (time.Time, bool) {
	if s.Retry == nil || s.Retry.NextRetryAt == nil {
		return time.Time{}, false
	}
	return *s.Retry.NextRetryAt, true
}

// ============================================================================
// Steps - 步骤映射
// ============================================================================

// Steps 步骤名到状态的映射
//
// 存储层在写入前调用 Validate，拒绝未知步骤状态和畸形重试记录，
// 避免自由形态 JSON 随时间悄悄漂移。
type Steps map[string]StepState

// Validate 校验步骤映射的形状
func (s Steps) Validate() error {
	for name, st := range s {
		if name == "" {
			return fmt.Errorf("step name must not be empty")
		}
		switch st.Status {
		case StepStatusPending, StepStatusRunning, StepStatusSuccess,
			StepStatusWarning, StepStatusFailed, StepStatusSkipped:
		default:
			return fmt.Errorf("step %s: unknown status %q", name, st.Status)
		}
		if st.Retry != nil && st.Retry.Count < 0 {
			return fmt.Errorf("step %s: negative retry count %d", name, st.Retry.Count)
		}
		if st.DurationMS != nil && *st.DurationMS < 0 {
			return fmt.Errorf("step %s: negative duration %d", name, *st.DurationMS)
		}
	}
	return nil
}

// AllDone 判断所有规范步骤是否均已成功结束
//
// 以规范步骤列表为准：缺失的步骤视为未完成，多余的步骤忽略。
func (s Steps) AllDone() bool {
	if len(s) == 0 {
		return false
	}
	for _, name := range PipelineSteps {
		st, ok := s[name]
		if !ok || !st.IsDone() {
			return false
		}
	}
	return true
}

// Current 返回当前推进中的步骤名（按规范顺序第一个未完成的步骤）
func (s Steps) Current() (string, StepState, bool) {
	for _, name := range PipelineSteps {
		st, ok := s[name]
		if !ok {
			return name, StepState{Status: StepStatusPending}, true
		}
		if !st.IsDone() {
			return name, st, true
		}
	}
	return "", StepState{}, false
}

// NewSteps 构造全 pending 的初始步骤映射
func NewSteps() Steps {
	s := make(Steps, len(PipelineSteps))
	for _, name := range PipelineSteps {
		s[name] = StepState{Status: StepStatusPending}
	}
	return s
}
