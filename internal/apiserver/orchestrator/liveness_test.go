package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"catalog-sync/internal/shared/lock"
	"catalog-sync/internal/shared/model"
)

// ============================================================================
// 活跃度阶梯
// ============================================================================

func TestSupervise_ActiveWindowIdempotent(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	store.addRun(runningRun("run-1", testNow.Add(-10*time.Minute)))
	store.addEvent("run-1", model.EventStepProgress, testNow.Add(-10*time.Second))

	o, executor, _, _ := newTestOrchestrator(store)

	// 连续三个 tick 都只能得到同一个结论，且一次 resume 都不发
	for i := 0; i < 3; i++ {
		result := o.Tick(context.Background(), testNow)
		if result.Status != StatusResumeSkippedActive {
			t.Fatalf("tick %d: expected resume_skipped_active_window, got %s", i, result.Status)
		}
	}
	if len(executor.resumeCalls) != 0 {
		t.Errorf("expected 0 resume calls, got %d", len(executor.resumeCalls))
	}
	if !store.hasEvent("run-1", model.EventResumeSkippedActive) {
		t.Error("expected resume_skipped_active_window event")
	}
}

func TestSupervise_StallWindowObserves(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	store.addRun(runningRun("run-1", testNow.Add(-10*time.Minute)))
	store.addEvent("run-1", model.EventStepProgress, testNow.Add(-120*time.Second))

	o, executor, _, _ := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusResumeSkippedStall {
		t.Errorf("expected resume_skipped_within_stall_window, got %s", result.Status)
	}
	if len(executor.resumeCalls) != 0 {
		t.Errorf("expected 0 resume calls, got %d", len(executor.resumeCalls))
	}
}

func TestSupervise_StallTriggersSingleResume(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	store.addRun(runningRun("run-1", testNow.Add(-10*time.Minute)))
	store.addEvent("run-1", model.EventStepProgress, testNow.Add(-200*time.Second))

	o, executor, _, _ := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusResumeTriggered {
		t.Fatalf("expected resume_triggered, got %s", result.Status)
	}
	if len(executor.resumeCalls) != 1 {
		t.Fatalf("expected exactly 1 resume call, got %d", len(executor.resumeCalls))
	}
	if executor.resumeCalls[0] != "run-1" {
		t.Errorf("expected resume of run-1, got %s", executor.resumeCalls[0])
	}
	if !store.hasEvent("run-1", model.EventResumeTriggered) {
		t.Error("expected resume_triggered event")
	}
}

func TestSupervise_YieldFastPath(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	store.addRun(runningRun("run-1", testNow.Add(-10*time.Minute)))
	// 10 秒前让出：在活跃窗口内，但 yield 不等停滞窗口
	store.addEvent("run-1", model.EventRunYielded, testNow.Add(-10*time.Second))

	o, executor, _, _ := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusResumeTriggered {
		t.Fatalf("expected resume_triggered via yield fast path, got %s", result.Status)
	}
	if len(executor.resumeCalls) != 1 {
		t.Errorf("expected 1 resume call, got %d", len(executor.resumeCalls))
	}
}

func TestSupervise_YieldDebounce(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	store.addRun(runningRun("run-1", testNow.Add(-10*time.Minute)))
	// 3 秒前刚让出：去抖期内按普通活跃窗口处理
	store.addEvent("run-1", model.EventRunYielded, testNow.Add(-3*time.Second))

	o, executor, _, _ := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusResumeSkippedActive {
		t.Errorf("expected resume_skipped_active_window, got %s", result.Status)
	}
	if len(executor.resumeCalls) != 0 {
		t.Errorf("expected 0 resume calls, got %d", len(executor.resumeCalls))
	}
}

// ============================================================================
// 超时收割
// ============================================================================

func TestSupervise_IdleTimeout(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	store.addRun(runningRun("run-1", testNow.Add(-31*time.Minute)))
	// 没有任何进度事件：活跃度退化为 Run 年龄

	o, executor, locks, notifier := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusTimeoutMarked {
		t.Fatalf("expected timeout_marked, got %s", result.Status)
	}
	if result.Reason != ReasonIdleTimeout {
		t.Errorf("expected reason idle_timeout, got %s", result.Reason)
	}
	if store.runs["run-1"].Status != model.RunStatusTimeout {
		t.Errorf("expected run status timeout, got %s", store.runs["run-1"].Status)
	}
	if len(locks.released) != 1 || locks.released[0] != lock.RunLockName("run-1") {
		t.Errorf("expected run lock released, got %v", locks.released)
	}
	if len(notifier.payloads) != 1 || notifier.payloads[0].Status != model.RunStatusTimeout {
		t.Errorf("expected timeout notification, got %v", notifier.payloads)
	}
	if !store.hasEvent("run-1", model.EventTimeoutMarked) {
		t.Error("expected timeout_marked event")
	}
	if len(executor.resumeCalls) != 0 {
		t.Errorf("timed out run must not be resumed, got %d calls", len(executor.resumeCalls))
	}
}

func TestSupervise_HardTimeoutDominatesRecentProgress(t *testing.T) {
	store := newFakeStore(intervalConfig(360)) // run_timeout 60m → 硬超时 120m
	store.addRun(runningRun("run-1", testNow.Add(-121*time.Minute)))
	store.addEvent("run-1", model.EventStepProgress, testNow.Add(-10*time.Second))

	o, executor, locks, _ := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusTimeoutMarked {
		t.Fatalf("expected timeout_marked, got %s", result.Status)
	}
	if result.Reason != ReasonHardTimeout {
		t.Errorf("expected reason hard_timeout, got %s", result.Reason)
	}
	if len(executor.resumeCalls) != 0 {
		t.Error("hard timeout must win over recent progress")
	}
	if len(locks.released) != 1 {
		t.Errorf("expected lock release, got %v", locks.released)
	}
}

func TestSupervise_ExportGraceSuppressesIdleTimeout(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	run := runningRun("run-1", testNow.Add(-40*time.Minute))
	run.Steps = model.Steps{
		model.StepParse:          {Status: model.StepStatusSuccess},
		model.StepPrice:          {Status: model.StepStatusSuccess},
		model.StepMapIdentifiers: {Status: model.StepStatusSuccess},
		model.StepExport:         {Status: model.StepStatusRunning},
		model.StepUpload:         {Status: model.StepStatusPending},
	}
	store.addRun(run)
	// 最近一条进度事件早已超过空闲窗口，但 5 分钟前有诊断事件续命
	store.addEvent("run-1", model.EventStepStarted, testNow.Add(-35*time.Minute))
	store.addEvent("run-1", model.EventResumeSkippedStall, testNow.Add(-5*time.Minute))

	o, executor, _, _ := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	// 宽限只压制收割，停滞判定照常：这个 Run 会被 resume 而不是被杀
	if result.Status != StatusResumeTriggered {
		t.Fatalf("expected resume_triggered under export grace, got %s", result.Status)
	}
	if store.runs["run-1"].Status != model.RunStatusRunning {
		t.Errorf("expected run still running, got %s", store.runs["run-1"].Status)
	}
	if len(executor.resumeCalls) != 1 {
		t.Errorf("expected 1 resume call, got %d", len(executor.resumeCalls))
	}
}

// ============================================================================
// resume 前置检查
// ============================================================================

func TestSupervise_StepRetryWaitSkipsResume(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	run := runningRun("run-1", testNow.Add(-10*time.Minute))
	nextRetry := testNow.Add(2 * time.Minute)
	run.Steps = model.Steps{
		model.StepParse: {Status: model.StepStatusSuccess},
		model.StepPrice: {
			Status: model.StepStatusFailed,
			Retry:  &model.StepRetry{Count: 1, NextRetryAt: &nextRetry},
		},
		model.StepMapIdentifiers: {Status: model.StepStatusPending},
		model.StepExport:         {Status: model.StepStatusPending},
		model.StepUpload:         {Status: model.StepStatusPending},
	}
	store.addRun(run)
	store.addEvent("run-1", model.EventStepRetryScheduled, testNow.Add(-200*time.Second))

	o, executor, _, _ := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %s", result.Status)
	}
	if result.Reason != ReasonStepRetryWait {
		t.Errorf("expected reason step_retry_wait, got %s", result.Reason)
	}
	if result.WaitSeconds != 120 {
		t.Errorf("expected wait_seconds=120, got %d", result.WaitSeconds)
	}
	if len(executor.resumeCalls) != 0 {
		t.Errorf("expected 0 resume calls, got %d", len(executor.resumeCalls))
	}
	if !store.hasEvent("run-1", model.EventResumeSkippedRetryWait) {
		t.Error("expected resume_skipped_retry_wait event")
	}
}

func TestSupervise_CompletionGuardFinalizes(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	run := runningRun("run-1", testNow.Add(-10*time.Minute))
	run.Steps = model.Steps{
		model.StepParse:          {Status: model.StepStatusSuccess},
		model.StepPrice:          {Status: model.StepStatusSuccess},
		model.StepMapIdentifiers: {Status: model.StepStatusWarning},
		model.StepExport:         {Status: model.StepStatusSuccess},
		model.StepUpload:         {Status: model.StepStatusSuccess},
	}
	run.WarningCount = 2
	store.addRun(run)
	store.addEvent("run-1", model.EventRunCompleted, testNow.Add(-200*time.Second))

	o, executor, _, notifier := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusFinalized {
		t.Fatalf("expected finalized, got %s", result.Status)
	}
	stored := store.runs["run-1"]
	if stored.Status != model.RunStatusSuccessWithWarning {
		t.Errorf("expected success_with_warning, got %s", stored.Status)
	}
	if stored.FinishedAt == nil || !stored.FinishedAt.Equal(testNow) {
		t.Errorf("expected finished_at=%s, got %v", testNow, stored.FinishedAt)
	}
	if len(executor.resumeCalls) != 0 {
		t.Error("completed run must not be resumed")
	}
	if len(notifier.payloads) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.payloads))
	}
	if notifier.payloads[0].Status != model.RunStatusSuccessWithWarning {
		t.Errorf("notification status=%s", notifier.payloads[0].Status)
	}
	if !store.hasEvent("run-1", model.EventRunFinalized) {
		t.Error("expected run_finalized event")
	}
}

func TestSupervise_ResumeFailureLeavesStateUntouched(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	store.addRun(runningRun("run-1", testNow.Add(-10*time.Minute)))
	store.addEvent("run-1", model.EventStepProgress, testNow.Add(-200*time.Second))

	o, executor, _, _ := newTestOrchestrator(store)
	executor.resumeErr = errors.New("context deadline exceeded")
	result := o.Tick(context.Background(), testNow)

	if result.Status != StatusError {
		t.Errorf("expected error, got %s", result.Status)
	}
	if store.runs["run-1"].Status != model.RunStatusRunning {
		t.Errorf("resume failure must not change run status, got %s", store.runs["run-1"].Status)
	}
	if !store.hasEvent("run-1", model.EventResumeFailed) {
		t.Error("expected resume_failed event")
	}

	// resume_failed 是诊断事件：下一个 tick 的活跃度不受它影响，仍会尝试 resume
	executor.resumeErr = nil
	next := o.Tick(context.Background(), testNow.Add(time.Minute))
	if next.Status != StatusResumeTriggered {
		t.Errorf("expected resume_triggered on next tick, got %s", next.Status)
	}
}

// ============================================================================
// 幂等收尾
// ============================================================================

func TestFinalize_Idempotent(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	run := runningRun("run-1", testNow.Add(-10*time.Minute))
	run.WarningCount = 1
	store.addRun(run)

	o, _, _, notifier := newTestOrchestrator(store)
	archiver := &fakeArchiver{}
	o.archiver = archiver

	stale := *run // 第二次收尾用的陈旧副本，仍然自称 running

	first := o.finalizeRun(context.Background(), run, testNow)
	second := o.finalizeRun(context.Background(), &stale, testNow.Add(time.Minute))

	if first.Status != StatusFinalized || second.Status != StatusFinalized {
		t.Fatalf("expected finalized twice, got %s / %s", first.Status, second.Status)
	}
	if first.Message != second.Message {
		t.Errorf("terminal status diverged: %s vs %s", first.Message, second.Message)
	}
	if store.runs["run-1"].Status != model.RunStatusSuccessWithWarning {
		t.Errorf("expected success_with_warning, got %s", store.runs["run-1"].Status)
	}
	if len(notifier.payloads) != 1 {
		t.Errorf("redundant finalize must not re-notify, got %d notifications", len(notifier.payloads))
	}
	if len(archiver.reports) != 1 {
		t.Errorf("redundant finalize must not re-archive, got %d reports", len(archiver.reports))
	}
	if archiver.reports[0].WarningCount != 1 {
		t.Errorf("warnings double-counted: %d", archiver.reports[0].WarningCount)
	}
}
