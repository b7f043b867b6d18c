// Package infra Redis 基础设施初始化
package infra

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"catalog-sync/internal/shared/eventbus"
	eventbusredis "catalog-sync/internal/shared/eventbus/redis"
	lockredis "catalog-sync/internal/shared/lock/redis"
)

// RedisInfra 在同一个 Redis 连接上组合 Run 锁与事件总线
type RedisInfra struct {
	lockStore     *lockredis.Store
	eventBusStore *eventbusredis.Store

	client *redis.Client
}

// NewRedisInfra 按 URL 连接 Redis 并构建协调层，Ping 不通直接报错
func NewRedisInfra(redisURL string) (*RedisInfra, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("[Redis/Infra] Connected to %s", opts.Addr)

	return &RedisInfra{
		client:        client,
		lockStore:     lockredis.New(client),
		eventBusStore: eventbusredis.New(client),
	}, nil
}

// Close 关闭共享的 Redis 连接
func (r *RedisInfra) Close() error {
	return r.client.Close()
}

// ============================================================================
// lock.Lock 接口委托实现
// ============================================================================

func (r *RedisInfra) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	return r.lockStore.Acquire(ctx, name, holder, ttl)
}
func (r *RedisInfra) Release(ctx context.Context, name string) error {
	return r.lockStore.Release(ctx, name)
}

// ============================================================================
// eventbus.EventBus 接口委托实现
// ============================================================================

func (r *RedisInfra) PublishRunEvent(ctx context.Context, runID string, event *eventbus.RunEvent) error {
	return r.eventBusStore.PublishRunEvent(ctx, runID, event)
}
func (r *RedisInfra) GetRunEvents(ctx context.Context, runID string, fromID string, count int64) ([]*eventbus.RunEvent, error) {
	return r.eventBusStore.GetRunEvents(ctx, runID, fromID, count)
}
func (r *RedisInfra) GetRunEventCount(ctx context.Context, runID string) (int64, error) {
	return r.eventBusStore.GetRunEventCount(ctx, runID)
}
func (r *RedisInfra) SubscribeRunEvents(ctx context.Context, runID string) (<-chan *eventbus.RunEvent, error) {
	return r.eventBusStore.SubscribeRunEvents(ctx, runID)
}
func (r *RedisInfra) DeleteRunEvents(ctx context.Context, runID string) error {
	return r.eventBusStore.DeleteRunEvents(ctx, runID)
}

// 确保 RedisInfra 实现了 Coordination 接口
var _ Coordination = (*RedisInfra)(nil)
