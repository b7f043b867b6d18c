// Package model 定义核心数据模型
//
// schedule.go 包含排程配置的数据模型定义：
//   - ScheduleConfig：单例排程配置
//   - ScheduleType：排程类型枚举
package model

import (
	"fmt"
	"time"
)

// ============================================================================
// ScheduleType - 排程类型
// ============================================================================

// ScheduleType 排程类型
type ScheduleType string

const (
	// ScheduleTypeInterval 间隔排程：距上次主执行启动 ≥ frequency_minutes 即到期
	ScheduleTypeInterval ScheduleType = "interval"

	// ScheduleTypeDaily 每日排程：固定民用时区内到达 daily_time 且当日未执行即到期
	ScheduleTypeDaily ScheduleType = "daily"
)

// MaxAttemptsCeiling max_attempts 的硬性上限，约束重试风暴
const MaxAttemptsCeiling = 5

// ScheduleConfigID 单例配置的固定主键
const ScheduleConfigID = "schedule"

// ============================================================================
// ScheduleConfig - 排程配置（单例）
// ============================================================================

// ScheduleConfig 目录同步的排程配置
//
// 配置是单例，只有两个写入方：
//   - 排程管理 API（操作员修改，UpdatedAt 随之刷新）
//   - 自动停用策略（只允许把 Enabled 置 false 并记录 DisabledReason）
//
// UpdatedAt 同时是失败链分析的回溯边界：操作员重新启用排程后，
// 早于该时间启动的失败不再计入连续失败链。
type ScheduleConfig struct {
	ID                string       `json:"id" bson:"_id" db:"id"`
	Enabled           bool         `json:"enabled" bson:"enabled" db:"enabled"`
	ScheduleType      ScheduleType `json:"schedule_type" bson:"schedule_type" db:"schedule_type"`
	FrequencyMinutes  int          `json:"frequency_minutes" bson:"frequency_minutes" db:"frequency_minutes"`
	DailyTime         string       `json:"daily_time" bson:"daily_time" db:"daily_time"`
	MaxAttempts       int          `json:"max_attempts" bson:"max_attempts" db:"max_attempts"`
	RetryDelayMinutes int          `json:"retry_delay_minutes" bson:"retry_delay_minutes" db:"retry_delay_minutes"`
	RunTimeoutMinutes int          `json:"run_timeout_minutes" bson:"run_timeout_minutes" db:"run_timeout_minutes"`
	DisabledReason    *string      `json:"disabled_reason,omitempty" bson:"disabled_reason,omitempty" db:"disabled_reason"`
	UpdatedAt         time.Time    `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// DefaultScheduleConfig 首次部署时写入的默认配置
func DefaultScheduleConfig() *ScheduleConfig {
	return &ScheduleConfig{
		ID:                ScheduleConfigID,
		Enabled:           false,
		ScheduleType:      ScheduleTypeDaily,
		FrequencyMinutes:  360,
		DailyTime:         "06:00",
		MaxAttempts:       3,
		RetryDelayMinutes: 15,
		RunTimeoutMinutes: 60,
		UpdatedAt:         time.Now().UTC(),
	}
}

// Validate 校验配置取值
func (c *ScheduleConfig) Validate() error {
	switch c.ScheduleType {
	case ScheduleTypeInterval:
		if c.FrequencyMinutes < 1 {
			return fmt.Errorf("frequency_minutes must be >= 1, got %d", c.FrequencyMinutes)
		}
	case ScheduleTypeDaily:
		if _, _, err := ParseDailyTime(c.DailyTime); err != nil {
			return fmt.Errorf("daily_time: %w", err)
		}
	default:
		return fmt.Errorf("unknown schedule_type %q", c.ScheduleType)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}
	if c.RetryDelayMinutes < 0 {
		return fmt.Errorf("retry_delay_minutes must be >= 0, got %d", c.RetryDelayMinutes)
	}
	if c.RunTimeoutMinutes < 1 {
		return fmt.Errorf("run_timeout_minutes must be >= 1, got %d", c.RunTimeoutMinutes)
	}
	return nil
}

// Normalize 收敛越界取值（max_attempts 封顶）
func (c *ScheduleConfig) Normalize() {
	if c.MaxAttempts > MaxAttemptsCeiling {
		c.MaxAttempts = MaxAttemptsCeiling
	}
	if c.ID == "" {
		c.ID = ScheduleConfigID
	}
}

// HardTimeout 返回硬性超时时长（运行时限的两倍）
func (c *ScheduleConfig) HardTimeout() time.Duration {
	return 2 * time.Duration(c.RunTimeoutMinutes) * time.Minute
}

// RetryDelay 返回重试延迟时长
func (c *ScheduleConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMinutes) * time.Minute
}

// Frequency 返回间隔排程的周期时长
func (c *ScheduleConfig) Frequency() time.Duration {
	return time.Duration(c.FrequencyMinutes) * time.Minute
}

// ParseDailyTime 解析 "HH:MM" 形式的每日执行时刻
func ParseDailyTime(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time out of range: %q", s)
	}
	return hour, minute, nil
}
