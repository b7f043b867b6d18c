// Package lock 锁层类型定义
package lock

import (
	"time"
)

// ============================================================================
// 键名与默认值
// ============================================================================

const (
	// KeyLockPrefix Redis 后端的锁键名前缀
	KeyLockPrefix = "catalog:lock:"

	// DefaultRunLockTTL Run 锁默认过期时间。
	// 执行器工作期间持有并续期；即使执行器崩溃且调度器没有回收，
	// 锁也会随 TTL 过期，不会永久卡死流水线。
	DefaultRunLockTTL = 5 * time.Minute
)

// RunLockName 返回 Run 锁的抽象名字，各后端映射到自己的键空间
func RunLockName(runID string) string {
	return "run:" + runID
}
