package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"catalog-sync/internal/notify"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/objstore"
	"catalog-sync/internal/shared/storage"
)

// maxReportEvents 报告里统计事件数时的读取上限
const maxReportEvents = 1000

// ============================================================================
// 收尾与强制超时
// ============================================================================

// finalizeRun 幂等收尾：条件写终态，生效后归档报告、通知、记录事件
//
// 终态由累计警告数决定（有警告则 success_with_warning）。条件写被拒
// 说明并发 tick 已经收尾，回读已存的终态返回即可：不重复归档、
// 不重复通知，警告数也不会被二次累计。
func (o *Orchestrator) finalizeRun(ctx context.Context, run *model.Run, now time.Time) *TickResult {
	status := run.FinalStatus()
	term := storage.RunTerminal{
		Status:     status,
		FinishedAt: now,
		RuntimeMS:  run.Age(now).Milliseconds(),
	}

	if err := o.store.UpdateRunIfRunning(ctx, run.ID, term); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			stored, gerr := o.store.GetRun(ctx, run.ID)
			if gerr != nil {
				return o.tickError(ctx, now, run.ID, fmt.Errorf("reload finalized run: %w", gerr))
			}
			log.Printf("[scheduler.finalize.conflict] run_id=%s status=%s", run.ID, stored.Status)
			return &TickResult{Status: StatusFinalized, RunID: run.ID, Message: string(stored.Status)}
		}
		return o.tickError(ctx, now, run.ID, fmt.Errorf("finalize run: %w", err))
	}

	run.Status = status
	run.FinishedAt = &term.FinishedAt
	run.RuntimeMS = &term.RuntimeMS

	o.archiveReport(ctx, run)
	o.notifier.NotifyRunFinished(ctx, notify.NewPayload(run))
	o.recordEvent(ctx, now, run.ID, model.EventLevelInfo, model.EventRunFinalized,
		map[string]any{"status": string(status), "warning_count": run.WarningCount})
	log.Printf("[scheduler.finalize.success] run_id=%s status=%s warnings=%d", run.ID, status, run.WarningCount)
	return &TickResult{Status: StatusFinalized, RunID: run.ID, Message: string(status)}
}

// forceTimeout 强制超时：条件写终态、回收 Run 锁、记录事件并通知
//
// 这是调度器唯一主动回收 Run 锁的地方：执行器大概率已经死了，
// 不回收的话锁要等 TTL 过期，下一次执行会白等。
func (o *Orchestrator) forceTimeout(ctx context.Context, run *model.Run, now time.Time, reason string) *TickResult {
	msg := "no progress within idle window"
	if reason == ReasonHardTimeout {
		msg = "hard timeout exceeded"
	}
	term := storage.RunTerminal{
		Status:       model.RunStatusTimeout,
		FinishedAt:   now,
		RuntimeMS:    run.Age(now).Milliseconds(),
		ErrorMessage: &msg,
	}

	if err := o.store.UpdateRunIfRunning(ctx, run.ID, term); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			log.Printf("[scheduler.timeout.conflict] run_id=%s reason=%s", run.ID, reason)
			return &TickResult{Status: StatusTimeoutMarked, RunID: run.ID, Reason: reason}
		}
		return o.tickError(ctx, now, run.ID, fmt.Errorf("mark timeout: %w", err))
	}

	o.releaseRunLock(ctx, run.ID)
	o.recordEvent(ctx, now, run.ID, model.EventLevelError, model.EventTimeoutMarked,
		map[string]any{"reason": reason, "age_seconds": int(run.Age(now).Seconds())})

	run.Status = model.RunStatusTimeout
	run.FinishedAt = &term.FinishedAt
	run.RuntimeMS = &term.RuntimeMS
	run.ErrorMessage = &msg

	o.archiveReport(ctx, run)
	o.notifier.NotifyRunFinished(ctx, notify.NewPayload(run))
	log.Printf("[scheduler.timeout.marked] run_id=%s reason=%s age=%s",
		run.ID, reason, run.Age(now).Round(time.Second))
	return &TickResult{Status: StatusTimeoutMarked, RunID: run.ID, Reason: reason}
}

// archiveReport 上传终态报告到对象存储，失败只记日志
func (o *Orchestrator) archiveReport(ctx context.Context, run *model.Run) {
	if o.archiver == nil {
		return
	}

	eventCount := 0
	if events, err := o.store.ListEventsByRun(ctx, run.ID, maxReportEvents, 0); err == nil {
		eventCount = len(events)
	}

	key, err := o.archiver.UploadReport(ctx, objstore.BuildReport(run, eventCount))
	if err != nil {
		log.Printf("[scheduler.report.upload.failed] run_id=%s error=%v", run.ID, err)
		return
	}
	log.Printf("[scheduler.report.uploaded] run_id=%s key=%s", run.ID, key)
}
