package notify

import "context"

// NoOpNotifier 空实现，未配置 webhook 时使用
type NoOpNotifier struct{}

// 确保 NoOpNotifier 实现了 Notifier 接口
var _ Notifier = (*NoOpNotifier)(nil)

// NewNoOpNotifier 创建空通知器
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyRunFinished 丢弃通知
func (n *NoOpNotifier) NotifyRunFinished(ctx context.Context, p *Payload) {}
