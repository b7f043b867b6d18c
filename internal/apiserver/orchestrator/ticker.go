package orchestrator

import (
	"context"
	"log"
	"time"
)

// StartTicker 启动内置 tick 定时器
//
// 生产部署用外部定时器（systemd timer / cron / k8s CronJob）POST
// tick 端点；本方法给没有外部定时器的开发与单机环境兜底。
// 阻塞直到 ctx 取消，调用方自行决定放哪个 goroutine。
func (h *Handler) StartTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	log.Printf("[scheduler.ticker.start] interval=%s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler.ticker.stop]")
			return
		case <-ticker.C:
			h.runTick(ctx)
		}
	}
}
