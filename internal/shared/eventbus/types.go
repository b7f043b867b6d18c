// Package eventbus 事件总线类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// RunEvent Run 执行事件。
// Seq 是事件在存储层的自增 ID，ID 是 Redis Stream 的消息 ID。
type RunEvent struct {
	ID        string                 `json:"id"`
	RunID     string                 `json:"run_id"`
	Seq       int64                  `json:"seq,omitempty"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// Key 前缀
	KeyRunEvents = "run_events:"

	// Stream 最大长度
	MaxStreamLength = 1000
)
