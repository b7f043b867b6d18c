// Package lock 锁层 mock 实现
package lock

import (
	"context"
	"time"
)

// ============================================================================
// NoOpLock - 空操作的 Lock 实现（用于测试和降级）
// ============================================================================

// NoOpLock 是一个总是获取成功的 Lock 实现。
// 锁后端不可用时使用：调度正确性由存储层条件写保证，
// 只是失去对已死执行器锁的显式回收（锁会随 TTL 自行过期）。
type NoOpLock struct{}

// NewNoOpLock 创建 NoOpLock 实例
func NewNoOpLock() *NoOpLock {
	return &NoOpLock{}
}

// Close 关闭锁
func (l *NoOpLock) Close() error {
	return nil
}

// Manager 方法

func (l *NoOpLock) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (l *NoOpLock) Release(ctx context.Context, name string) error {
	return nil
}

// 确保 NoOpLock 实现了 Lock 接口
var _ Lock = (*NoOpLock)(nil)
