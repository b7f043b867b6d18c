// Package lock 分布式锁抽象接口
//
// 提供命名 Run 锁能力，当前由 Redis 或 etcd 实现。
// 锁由流水线执行器在工作期间持有（保证单步推进）；调度器自己从不持锁，
// 只在强制超时一个 Run 时回收它的锁。调度正确性由存储层的条件写保证，
// 因此锁后端不可用时调度器可以安全降级。
package lock

import (
	"context"
	"time"
)

// ============================================================================
// 锁接口定义
// ============================================================================

// Manager 命名锁接口
type Manager interface {
	// Acquire 尝试获取命名锁，返回是否获取成功。
	// holder 标识当前持有者，ttl 为锁的自动过期时间。
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)

	// Release 释放命名锁。
	// 强制超时回收时锁可能仍由已死的执行器持有，因此不做持有者比较。
	Release(ctx context.Context, name string) error
}

// ============================================================================
// 组合接口
// ============================================================================

// Lock 锁组合接口
type Lock interface {
	Manager
	Close() error
}
