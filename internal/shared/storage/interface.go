// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：repository/（PostgreSQL/SQLite）、mongostore/（MongoDB）
//   - 初始化时通过依赖注入传入实现
//
// 调度器跨 tick 的全部协调状态都在这里：Run 行、追加式事件流、
// 单例排程配置。条件写（UpdateRunIfRunning）是并发 tick 安全的基石。
package storage

import (
	"context"
	"time"

	"catalog-sync/internal/shared/model"
)

// ============================================================================
// Run 存储
// ============================================================================

// RunTerminal 条件终态写入的载荷
//
// FinishedAt/RuntimeMS 由调用方计算，ErrorMessage 可为 nil。
type RunTerminal struct {
	Status       model.RunStatus
	FinishedAt   time.Time
	RuntimeMS    int64
	ErrorMessage *string
}

// RunStore Run 存储接口
//
// 调度器从不插入 Run 行（CreateRun 只服务流水线执行器侧），
// 只做条件状态写入与字段更新。
type RunStore interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, status string, limit, offset int) ([]*model.Run, error)

	// ListRunningRuns 返回全部 running 状态的 Run，按 started_at 降序。
	// 第一条即本 tick 的"当前活跃 Run"。
	ListRunningRuns(ctx context.Context) ([]*model.Run, error)

	// LatestScheduledRun 返回最近启动的 scheduled 触发 Run（任意 attempt）。
	// 无则返回 ErrNotFound。
	LatestScheduledRun(ctx context.Context) (*model.Run, error)

	// LatestPrimaryRun 返回最近启动的已终止主执行（scheduled + attempt=1）。
	// 无则返回 ErrNotFound。
	LatestPrimaryRun(ctx context.Context) (*model.Run, error)

	// ListPrimaryRunsSince 返回 since 之后启动的主执行，按 started_at 降序。
	// 失败链分析与每日到期检查共用。
	ListPrimaryRunsSince(ctx context.Context, since time.Time, limit int) ([]*model.Run, error)

	// UpdateRunIfRunning 条件终态写入：仅当 Run 仍为 running 时生效。
	// 未生效时返回 ErrConflict，调用方按幂等处理。
	UpdateRunIfRunning(ctx context.Context, id string, term RunTerminal) error

	// UpdateRunProgress 执行器侧的推进写入：步骤映射 + 累计警告数。
	// 写入前校验 Steps 形状，畸形数据返回 ErrInvalidInput。
	UpdateRunProgress(ctx context.Context, id string, steps model.Steps, warningCount int) error

	// UpdateRunCancel 置取消标志（协作式取消，由执行器在步骤间观察）。
	UpdateRunCancel(ctx context.Context, id string, requested, byUser bool) error
}

// ============================================================================
// 事件存储
// ============================================================================

// EventStore 事件存储接口（追加式）
type EventStore interface {
	AppendEvent(ctx context.Context, event *model.Event) error
	AppendEvents(ctx context.Context, events []*model.Event) error
	ListEventsByRun(ctx context.Context, runID string, limit, offset int) ([]*model.Event, error)

	// LatestProgressEvent 返回 Run 最近一条进度事件（排除诊断噪音）。
	// 无则返回 ErrNotFound。活跃度判定以此为准。
	LatestProgressEvent(ctx context.Context, runID string) (*model.Event, error)

	// LatestEvent 返回 Run 最近一条事件（含诊断），供空闲宽限检查使用。
	LatestEvent(ctx context.Context, runID string) (*model.Event, error)
}

// ============================================================================
// 排程配置存储
// ============================================================================

// ScheduleStore 排程配置存储接口（单例行）
type ScheduleStore interface {
	GetScheduleConfig(ctx context.Context) (*model.ScheduleConfig, error)

	// PutScheduleConfig 全量写入（upsert），刷新 updated_at。
	PutScheduleConfig(ctx context.Context, cfg *model.ScheduleConfig) error

	// DisableSchedule 自动停用：置 enabled=false 并记录原因。
	// 这是自动停用策略唯一允许的配置写入。
	DisableSchedule(ctx context.Context, reason string) error
}

// ============================================================================
// 用户存储
// ============================================================================

// UserStore 用户存储接口
//
// 查找未命中统一返回 ErrNotFound。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// Store 持久化存储组合接口
type Store interface {
	RunStore
	EventStore
	ScheduleStore
	UserStore
	Close() error
}
