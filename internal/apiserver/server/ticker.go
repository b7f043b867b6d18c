// Package server 内置定时器入口
package server

import (
	"context"
	"time"
)

// StartInternalTicker 启动内置 tick 定时器
//
// 生产部署应由外部定时器 POST /api/v1/scheduler/tick；本方法给
// 没有外部定时器的开发与单机环境兜底。阻塞直到 ctx 取消。
func (h *Handler) StartInternalTicker(ctx context.Context, interval time.Duration) {
	h.tick.StartTicker(ctx, interval)
}
