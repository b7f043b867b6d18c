// Package redis 基于 Redis SETNX 的命名锁
//
// 锁值为持有者标识，TTL 管住崩溃后的泄漏。
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"catalog-sync/internal/shared/lock"
)

// Store 共享 Redis 客户端上的锁操作
type Store struct {
	client *redis.Client
}

// New 复用已建立的 Redis 客户端，连接生命周期归调用方管理
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// Acquire 尝试获取命名锁
func (s *Store) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = lock.DefaultRunLockTTL
	}

	key := lock.KeyLockPrefix + name
	ok, err := s.client.SetNX(ctx, key, holder, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}

	return ok, nil
}

// Release 释放命名锁。
// 调度器强制超时一个 Run 时用它回收执行器遗留的锁，因此无条件删除。
func (s *Store) Release(ctx context.Context, name string) error {
	key := lock.KeyLockPrefix + name
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}

	return nil
}
