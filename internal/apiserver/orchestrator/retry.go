package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"catalog-sync/internal/pipeline"
	"catalog-sync/internal/shared/model"
)

// ============================================================================
// 重试判定
// ============================================================================

// checkRetry 失败重试判定
//
// 看最近一次 scheduled 触发的 Run（任意 attempt）：以 failed/timeout
// 结束且尝试次数未用尽时，距 finished_at 满 retry_delay 就安排下一次
// 尝试，否则报告剩余等待。待处理的重试优先于新的到期执行。
//
// 返回 nil 表示没有重试事项，继续走后面的判定。
func (o *Orchestrator) checkRetry(ctx context.Context, cfg *model.ScheduleConfig, now time.Time) *TickResult {
	last, err := o.store.LatestScheduledRun(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return o.tickError(ctx, now, "", fmt.Errorf("load latest scheduled run: %w", err))
	}

	if !last.CanRetry() {
		return nil
	}
	if last.Attempt >= cfg.MaxAttempts {
		// 链条已满：是否停用由失败链分析决定
		return nil
	}
	if last.FinishedAt == nil {
		log.Printf("[scheduler.retry.skip] run_id=%s reason=missing_finished_at", last.ID)
		return nil
	}

	elapsed := now.Sub(*last.FinishedAt)
	if elapsed < cfg.RetryDelay() {
		wait := waitSeconds(cfg.RetryDelay() - elapsed)
		log.Printf("[scheduler.retry.wait] run_id=%s attempt=%d wait_seconds=%d", last.ID, last.Attempt, wait)
		return &TickResult{Status: StatusSkipped, RunID: last.ID, Reason: ReasonRetryDelay, WaitSeconds: wait}
	}

	attempt := last.Attempt + 1
	runID, err := o.executor.Start(ctx, &pipeline.StartRequest{
		TriggerType: model.TriggerTypeScheduled,
		Attempt:     attempt,
	})
	if err != nil {
		return o.tickError(ctx, now, last.ID, fmt.Errorf("start retry attempt %d: %w", attempt, err))
	}

	o.recordEvent(ctx, now, runID, model.EventLevelInfo, model.EventRetryStarted,
		map[string]any{"attempt": attempt, "previous_run_id": last.ID, "previous_status": string(last.Status)})
	log.Printf("[scheduler.retry.start] run_id=%s attempt=%d previous=%s", runID, attempt, last.ID)
	return &TickResult{Status: StatusRetryStarted, RunID: runID}
}
