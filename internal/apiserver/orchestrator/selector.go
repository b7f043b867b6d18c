package orchestrator

import (
	"context"
	"errors"
	"log"
	"time"

	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// ============================================================================
// 活跃 Run 选择
// ============================================================================

// selectActiveRun 选出本 tick 的活跃 Run，并顺带清理异常的多活行
//
// ListRunningRuns 按 started_at 降序排列，第一条即活跃 Run。其余行是
// 不变量被破坏后的残留（执行器崩溃、double-tick 下的重复启动）：
// 已经超过空闲阈值的直接强制超时并回收锁；还很年轻的放过，
// 绝不和一个可能活着的执行抢时序。
func (o *Orchestrator) selectActiveRun(ctx context.Context, running []*model.Run, now time.Time) *model.Run {
	if len(running) == 0 {
		return nil
	}

	active := running[0]
	for _, stray := range running[1:] {
		age := stray.Age(now)
		if age <= o.thresholds.IdleTimeout {
			log.Printf("[scheduler.cleanup.skip] run_id=%s age=%s reason=below_idle_threshold",
				stray.ID, age.Round(time.Second))
			continue
		}
		o.cleanupStray(ctx, stray, active.ID, now)
	}
	return active
}

// cleanupStray 强制超时一条多活残留行
//
// 条件写被拒说明并发 tick 已经处理过，静默跳过即可。
// 不发通知：多活清理是内部修复，不是正常的生命周期终点。
func (o *Orchestrator) cleanupStray(ctx context.Context, stray *model.Run, activeID string, now time.Time) {
	msg := "superseded running run forced to timeout"
	term := storage.RunTerminal{
		Status:       model.RunStatusTimeout,
		FinishedAt:   now,
		RuntimeMS:    stray.Age(now).Milliseconds(),
		ErrorMessage: &msg,
	}
	if err := o.store.UpdateRunIfRunning(ctx, stray.ID, term); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			log.Printf("[scheduler.cleanup.conflict] run_id=%s", stray.ID)
			return
		}
		log.Printf("[scheduler.cleanup.failed] run_id=%s error=%v", stray.ID, err)
		return
	}

	o.releaseRunLock(ctx, stray.ID)
	o.recordEvent(ctx, now, stray.ID, model.EventLevelError, model.EventMultiRunningCleanup,
		map[string]any{
			"active_run_id": activeID,
			"age_seconds":   int(stray.Age(now).Seconds()),
		})
	log.Printf("[scheduler.cleanup.timeout] run_id=%s active_run_id=%s age=%s",
		stray.ID, activeID, stray.Age(now).Round(time.Second))
}
