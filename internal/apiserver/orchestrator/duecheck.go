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
// 到期判定
// ============================================================================

// checkDue 排程到期判定，到期即启动新的主执行
//
// 只在没有活跃 Run 且没有待处理重试时才会走到这里。
func (o *Orchestrator) checkDue(ctx context.Context, cfg *model.ScheduleConfig, now time.Time) *TickResult {
	due, wait, err := o.evaluateDue(ctx, cfg, now)
	if err != nil {
		return o.tickError(ctx, now, "", err)
	}
	if !due {
		return &TickResult{Status: StatusSkipped, Reason: ReasonNotDue, WaitSeconds: wait}
	}

	runID, err := o.executor.Start(ctx, &pipeline.StartRequest{
		TriggerType: model.TriggerTypeScheduled,
		Attempt:     1,
	})
	if err != nil {
		return o.tickError(ctx, now, "", fmt.Errorf("start scheduled run: %w", err))
	}

	o.recordEvent(ctx, now, runID, model.EventLevelInfo, model.EventSyncStarted,
		map[string]any{"schedule_type": string(cfg.ScheduleType)})
	log.Printf("[scheduler.sync.start] run_id=%s schedule_type=%s", runID, cfg.ScheduleType)
	return &TickResult{Status: StatusSyncStarted, RunID: runID}
}

// evaluateDue 返回是否到期，未到期时给出剩余等待秒数
func (o *Orchestrator) evaluateDue(ctx context.Context, cfg *model.ScheduleConfig, now time.Time) (bool, int, error) {
	switch cfg.ScheduleType {
	case model.ScheduleTypeInterval:
		return o.intervalDue(ctx, cfg, now)
	case model.ScheduleTypeDaily:
		return o.dailyDue(ctx, cfg, now)
	default:
		return false, 0, fmt.Errorf("unknown schedule_type %q", cfg.ScheduleType)
	}
}

// intervalDue 间隔排程：距上一次主执行的启动时刻已满 frequency 即到期
//
// 以启动时刻而非结束时刻计：执行耗时不挤占周期。
func (o *Orchestrator) intervalDue(ctx context.Context, cfg *model.ScheduleConfig, now time.Time) (bool, int, error) {
	last, err := o.store.LatestPrimaryRun(ctx)
	if err != nil {
		if isNotFound(err) {
			return true, 0, nil
		}
		return false, 0, fmt.Errorf("load latest primary run: %w", err)
	}

	elapsed := now.Sub(last.StartedAt)
	if elapsed >= cfg.Frequency() {
		return true, 0, nil
	}
	return false, waitSeconds(cfg.Frequency() - elapsed), nil
}

// dailyDue 每日排程：固定时区内已过 daily_time 且当天还没有主执行即到期
func (o *Orchestrator) dailyDue(ctx context.Context, cfg *model.ScheduleConfig, now time.Time) (bool, int, error) {
	hour, minute, err := model.ParseDailyTime(cfg.DailyTime)
	if err != nil {
		return false, 0, fmt.Errorf("daily_time: %w", err)
	}

	local := now.In(o.location)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, o.location)
	target := dayStart.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)

	if local.Before(target) {
		return false, waitSeconds(target.Sub(local)), nil
	}

	today, err := o.store.ListPrimaryRunsSince(ctx, dayStart, 1)
	if err != nil {
		return false, 0, fmt.Errorf("list primary runs: %w", err)
	}
	if len(today) == 0 {
		return true, 0, nil
	}
	return false, waitSeconds(target.AddDate(0, 0, 1).Sub(local)), nil
}
