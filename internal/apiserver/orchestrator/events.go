package orchestrator

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/model"
)

// ============================================================================
// 决策事件
// ============================================================================

// recordEvent 写入一条决策事件并尽力推送到实时事件流
//
// 事件先落库再写响应；落库失败只记日志，推送失败同样只记日志，
// 侧信道永远不阻断 tick 决策。
func (o *Orchestrator) recordEvent(ctx context.Context, now time.Time, runID string, level model.EventLevel, message string, details map[string]any) {
	event := model.NewEvent(runID, level, message, details)
	event.CreatedAt = now

	if err := o.store.AppendEvent(ctx, event); err != nil {
		log.Printf("[scheduler.event.append.failed] run_id=%s message=%s error=%v", runID, message, err)
		return
	}
	o.publishEvent(ctx, event)
}

// publishEvent 把事件推送到 Redis Stream（WebSocket 网关的数据源）
func (o *Orchestrator) publishEvent(ctx context.Context, event *model.Event) {
	if o.bus == nil {
		return
	}
	busEvent := &eventbus.RunEvent{
		RunID:     event.RunID,
		Seq:       event.ID,
		Level:     string(event.Level),
		Message:   event.Message,
		Timestamp: event.CreatedAt,
		Details:   decodeDetails(event.Details),
	}
	if err := o.bus.PublishRunEvent(ctx, event.RunID, busEvent); err != nil {
		log.Printf("[scheduler.event.publish.failed] run_id=%s message=%s error=%v",
			event.RunID, event.Message, err)
	}
}

// decodeDetails 把存储形态的 details 还原成键值对，失败时返回 nil
func decodeDetails(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var details map[string]interface{}
	if err := json.Unmarshal(raw, &details); err != nil {
		return nil
	}
	return details
}
