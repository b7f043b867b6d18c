// Package redis 基于 Redis Streams 的运行事件总线
//
// 每个 Run 一条 Stream，WebSocket 网关靠 XREAD 跟读做实时推送；
// Stream 按 MaxLen 近似截断，数据库才是事件的权威存储。
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"catalog-sync/internal/shared/eventbus"
)

const (
	// subscribeBuffer 订阅通道缓冲，消费方是 WebSocket 推送循环
	subscribeBuffer = 100
	// xreadBlock 单次 XREAD 阻塞上限，到期空转一轮以便检查 ctx
	xreadBlock = 5 * time.Second
	// xreadCount 单次 XREAD 最多取回的消息数
	xreadCount = 64
)

// Store 共享 Redis 客户端上的事件流操作
type Store struct {
	client *redis.Client
}

// New 复用已建立的 Redis 客户端，连接生命周期归调用方管理
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// parseRunEvent 从 Stream 消息解析 Run 事件
func parseRunEvent(msg redis.XMessage) *eventbus.RunEvent {
	event := &eventbus.RunEvent{ID: msg.ID}

	if v, ok := msg.Values["run_id"].(string); ok {
		event.RunID = v
	}
	if v, ok := msg.Values["seq"].(string); ok {
		if seq, err := strconv.ParseInt(v, 10, 64); err == nil {
			event.Seq = seq
		}
	}
	if v, ok := msg.Values["level"].(string); ok {
		event.Level = v
	}
	if v, ok := msg.Values["message"].(string); ok {
		event.Message = v
	}
	if v, ok := msg.Values["timestamp"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			event.Timestamp = t
		}
	}
	if v, ok := msg.Values["details"].(string); ok && v != "" {
		var details map[string]interface{}
		if err := json.Unmarshal([]byte(v), &details); err == nil {
			event.Details = details
		}
	}

	return event
}

// PublishRunEvent 发布 Run 事件
func (s *Store) PublishRunEvent(ctx context.Context, runID string, event *eventbus.RunEvent) error {
	key := fmt.Sprintf("%s%s", eventbus.KeyRunEvents, runID)

	values := map[string]interface{}{
		"run_id":    runID,
		"seq":       strconv.FormatInt(event.Seq, 10),
		"level":     event.Level,
		"message":   event.Message,
		"timestamp": event.Timestamp.Format(time.RFC3339Nano),
	}

	if len(event.Details) > 0 {
		detailsJSON, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal event details: %w", err)
		}
		values["details"] = string(detailsJSON)
	}

	args := &redis.XAddArgs{
		Stream: key,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: values,
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish run event: %w", err)
	}

	log.Printf("[Redis/EventBus] Published run event: %s id=%s message=%s", runID, id, event.Message)
	return nil
}

// GetRunEvents 获取 Run 事件列表
func (s *Store) GetRunEvents(ctx context.Context, runID string, fromID string, count int64) ([]*eventbus.RunEvent, error) {
	key := fmt.Sprintf("%s%s", eventbus.KeyRunEvents, runID)

	if fromID == "" {
		fromID = "0"
	}

	msgs, err := s.client.XRange(ctx, key, fromID, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get run events: %w", err)
	}
	if count > 0 && int64(len(msgs)) > count {
		msgs = msgs[:count]
	}

	events := make([]*eventbus.RunEvent, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, parseRunEvent(msg))
	}
	return events, nil
}

// GetRunEventCount 获取 Run 事件数量
func (s *Store) GetRunEventCount(ctx context.Context, runID string) (int64, error) {
	key := fmt.Sprintf("%s%s", eventbus.KeyRunEvents, runID)
	return s.client.XLen(ctx, key).Result()
}

// SubscribeRunEvents 订阅 Run 事件
//
// 从订阅时刻起跟读（lastID 从 "$" 开始），历史事件走 GetRunEvents。
// ctx 取消后通道关闭，订阅 goroutine 随之退出。
func (s *Store) SubscribeRunEvents(ctx context.Context, runID string) (<-chan *eventbus.RunEvent, error) {
	key := fmt.Sprintf("%s%s", eventbus.KeyRunEvents, runID)
	ch := make(chan *eventbus.RunEvent, subscribeBuffer)

	go func() {
		defer close(ch)

		lastID := "$"
		for {
			streams, err := s.client.XRead(ctx, &redis.XReadArgs{
				Streams: []string{key, lastID},
				Count:   xreadCount,
				Block:   xreadBlock,
			}).Result()
			if err != nil {
				// Block 到期没有新消息，再读一轮
				if err == redis.Nil {
					continue
				}
				if ctx.Err() == nil {
					log.Printf("[Redis/EventBus] Run event subscription error: %v", err)
				}
				return
			}

			for _, stream := range streams {
				for _, msg := range stream.Messages {
					select {
					case ch <- parseRunEvent(msg):
						lastID = msg.ID
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch, nil
}

// DeleteRunEvents 删除 Run 的事件流
func (s *Store) DeleteRunEvents(ctx context.Context, runID string) error {
	key := fmt.Sprintf("%s%s", eventbus.KeyRunEvents, runID)

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete run events: %w", err)
	}

	return nil
}
