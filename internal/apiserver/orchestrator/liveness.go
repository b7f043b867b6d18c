package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"catalog-sync/internal/shared/model"
)

// ============================================================================
// 活跃度判定
// ============================================================================

// superviseRun 监督活跃 Run，按严格顺序判定并执行唯一动作
//
// 判定顺序（前面的判定命中即返回，后面的不再评估）：
//  1. 硬超时：Run 年龄超过 run_timeout 的两倍，无条件收割
//  2. 空闲超时：空闲窗口内没有任何进度，收割（导出步骤有宽限）
//  3. yield 快速通道：主动让出的 Run 过了去抖期立即续跑
//  4. 活跃窗口：最近有进度，本 tick 不打扰
//  5. 观望窗口：进度略旧但还没到停滞线，再等等
//  6. 停滞：发起 resume，每个 tick 至多一次
//
// 活跃度以"距最近一条进度事件的时间"衡量，不是 Run 的墙钟年龄：
// 一个慢但在推进的 Run 永远不会被饿死。没有任何进度事件时
// 退化为 Run 年龄。
func (o *Orchestrator) superviseRun(ctx context.Context, cfg *model.ScheduleConfig, run *model.Run, now time.Time) *TickResult {
	age := run.Age(now)

	if age > cfg.HardTimeout() {
		return o.forceTimeout(ctx, run, now, ReasonHardTimeout)
	}

	progressAge := age
	var lastProgress *model.Event
	if event, err := o.store.LatestProgressEvent(ctx, run.ID); err == nil {
		lastProgress = event
		progressAge = now.Sub(event.CreatedAt)
	} else if !isNotFound(err) {
		return o.tickError(ctx, now, run.ID, fmt.Errorf("load progress event: %w", err))
	}

	if age > o.thresholds.IdleTimeout && progressAge > o.thresholds.IdleTimeout {
		if !o.exportGrace(ctx, run, now) {
			return o.forceTimeout(ctx, run, now, ReasonIdleTimeout)
		}
		log.Printf("[scheduler.idle.grace] run_id=%s step=%s progress_age=%s",
			run.ID, model.StepExport, progressAge.Round(time.Second))
	}

	// 让出的 Run 不等完整的停滞窗口；去抖期内的 yield 走正常窗口判定
	if lastProgress != nil && lastProgress.IsYield() && progressAge > o.thresholds.YieldDebounce {
		return o.resumeRun(ctx, run, now, "yield")
	}

	if progressAge <= o.thresholds.ActiveWindow {
		o.recordEvent(ctx, now, run.ID, model.EventLevelInfo, model.EventResumeSkippedActive,
			map[string]any{"progress_age_seconds": int(progressAge.Seconds())})
		return &TickResult{Status: StatusResumeSkippedActive, RunID: run.ID}
	}

	if progressAge <= o.thresholds.StallWindow {
		o.recordEvent(ctx, now, run.ID, model.EventLevelInfo, model.EventResumeSkippedStall,
			map[string]any{"progress_age_seconds": int(progressAge.Seconds())})
		return &TickResult{Status: StatusResumeSkippedStall, RunID: run.ID}
	}

	return o.resumeRun(ctx, run, now, "stalled")
}

// exportGrace 导出步骤的空闲宽限
//
// 分页导出可能长时间只产生低级别事件甚至只有调度器自己的跳过记录。
// 只要当前步骤是导出且窗口内还有任何事件（含诊断类），就暂不按
// 空闲超时收割；硬超时仍然兜底。
func (o *Orchestrator) exportGrace(ctx context.Context, run *model.Run, now time.Time) bool {
	step, _, ok := run.Steps.Current()
	if !ok || step != model.StepExport {
		return false
	}
	event, err := o.store.LatestEvent(ctx, run.ID)
	if err != nil {
		return false
	}
	return now.Sub(event.CreatedAt) <= o.thresholds.IdleTimeout
}

// resumeRun 对停滞或让出的 Run 发起续跑，每个 tick 至多一次
//
// 发起前重读 Run 做三道前置检查：
//   - 已是终态：并发 tick 抢先收尾了，直接回报已存的终态
//   - 步骤全部完成：转收尾，不再打扰执行器
//   - 当前步骤在重试等待期：只报告剩余等待，不发起调用
//
// resume 调用失败不改变 Run 状态，下一个 tick 从存储层重新判定。
func (o *Orchestrator) resumeRun(ctx context.Context, run *model.Run, now time.Time, cause string) *TickResult {
	fresh, err := o.store.GetRun(ctx, run.ID)
	if err != nil {
		return o.tickError(ctx, now, run.ID, fmt.Errorf("reload run: %w", err))
	}

	if fresh.IsTerminal() {
		log.Printf("[scheduler.resume.skip] run_id=%s reason=already_terminal status=%s", fresh.ID, fresh.Status)
		return &TickResult{Status: StatusFinalized, RunID: fresh.ID, Message: string(fresh.Status)}
	}
	if fresh.Steps.AllDone() {
		return o.finalizeRun(ctx, fresh, now)
	}
	if step, state, ok := fresh.Steps.Current(); ok {
		if until, waiting := state.WaitingRetryUntil(); waiting && until.After(now) {
			wait := waitSeconds(until.Sub(now))
			o.recordEvent(ctx, now, fresh.ID, model.EventLevelInfo, model.EventResumeSkippedRetryWait,
				map[string]any{"step": step, "wait_seconds": wait})
			return &TickResult{Status: StatusSkipped, RunID: fresh.ID, Reason: ReasonStepRetryWait, WaitSeconds: wait}
		}
	}

	log.Printf("[scheduler.resume.start] run_id=%s cause=%s", fresh.ID, cause)
	result, err := o.executor.Resume(ctx, fresh.ID)
	if err != nil {
		o.recordEvent(ctx, now, fresh.ID, model.EventLevelWarn, model.EventResumeFailed,
			map[string]any{"cause": cause, "error": err.Error()})
		log.Printf("[scheduler.resume.failed] run_id=%s error=%v", fresh.ID, err)
		return &TickResult{Status: StatusError, RunID: fresh.ID, Message: fmt.Sprintf("resume failed: %v", err)}
	}

	details := map[string]any{"cause": cause, "status": result.Status}
	if result.CurrentStep != "" {
		details["current_step"] = result.CurrentStep
	}
	if result.WaitSeconds > 0 {
		details["wait_seconds"] = result.WaitSeconds
	}
	o.recordEvent(ctx, now, fresh.ID, model.EventLevelInfo, model.EventResumeTriggered, details)
	log.Printf("[scheduler.resume.success] run_id=%s status=%s", fresh.ID, result.Status)
	return &TickResult{Status: StatusResumeTriggered, RunID: fresh.ID}
}
