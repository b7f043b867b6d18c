// Package infra 基础设施聚合层
//
// 提供统一的基础设施初始化和依赖注入，包括：
//   - Storage：持久化存储（PostgreSQL/SQLite/MongoDB）
//   - Lock：命名 Run 锁（Redis/etcd）
//   - EventBus：Run 事件总线（Redis Streams）
package infra

import (
	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/lock"
)

// Coordination 协调层组合接口
//
// 组合 Run 锁与事件总线，由 RedisInfra 实现。
// Redis 不可用时用 NewNoOpCoordination 降级：调度正确性不受影响
// （由存储层条件写保证），仅失去实时推送与对执行器遗留锁的回收。
type Coordination interface {
	lock.Lock
	eventbus.EventBus
}

// ============================================================================
// NoOpCoordination - 空操作的 Coordination 实现（用于测试和降级）
// ============================================================================

// NoOpCoordination 组合 NoOpLock 与 NoOpEventBus
type NoOpCoordination struct {
	*lock.NoOpLock
	*eventbus.NoOpEventBus
}

// NewNoOpCoordination 创建 NoOpCoordination 实例
func NewNoOpCoordination() *NoOpCoordination {
	return &NoOpCoordination{
		NoOpLock:     lock.NewNoOpLock(),
		NoOpEventBus: eventbus.NewNoOpEventBus(),
	}
}

// Close 关闭所有基础设施连接
func (c *NoOpCoordination) Close() error {
	return nil
}

// 确保 NoOpCoordination 实现了 Coordination 接口
var _ Coordination = (*NoOpCoordination)(nil)
