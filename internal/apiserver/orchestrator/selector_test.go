package orchestrator

import (
	"context"
	"testing"
	"time"

	"catalog-sync/internal/shared/lock"
	"catalog-sync/internal/shared/model"
)

// ============================================================================
// 多活清理
// ============================================================================

func TestSelector_CleanupStrayRuns(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	// 三条 running：最新的是活跃 Run，一条年轻残留，一条过期残留
	active := runningRun("run-active", testNow.Add(-5*time.Minute))
	young := runningRun("run-young", testNow.Add(-10*time.Minute))
	expired := runningRun("run-expired", testNow.Add(-40*time.Minute))
	store.addRun(active)
	store.addRun(young)
	store.addRun(expired)
	store.addEvent("run-active", model.EventStepProgress, testNow.Add(-10*time.Second))

	o, executor, locks, notifier := newTestOrchestrator(store)
	result := o.Tick(context.Background(), testNow)

	// 活跃 Run 按正常阶梯处理
	if result.Status != StatusResumeSkippedActive {
		t.Fatalf("expected resume_skipped_active_window for active run, got %s", result.Status)
	}
	if result.RunID != "run-active" {
		t.Errorf("expected active run-active, got %s", result.RunID)
	}

	// 过期残留被强制超时并回收锁
	if store.runs["run-expired"].Status != model.RunStatusTimeout {
		t.Errorf("expected expired stray timed out, got %s", store.runs["run-expired"].Status)
	}
	if !store.hasEvent("run-expired", model.EventMultiRunningCleanup) {
		t.Error("expected multi_running_cleanup event on expired stray")
	}
	found := false
	for _, name := range locks.released {
		if name == lock.RunLockName("run-expired") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected expired stray lock released, got %v", locks.released)
	}

	// 年轻残留不碰：可能还活着
	if store.runs["run-young"].Status != model.RunStatusRunning {
		t.Errorf("expected young stray untouched, got %s", store.runs["run-young"].Status)
	}
	if store.hasEvent("run-young", model.EventMultiRunningCleanup) {
		t.Error("young stray must not be cleaned up")
	}

	// 清理是内部修复，不发通知也不触发 resume
	if len(notifier.payloads) != 0 {
		t.Errorf("cleanup must not notify, got %d payloads", len(notifier.payloads))
	}
	if len(executor.resumeCalls) != 0 {
		t.Errorf("expected 0 resume calls, got %d", len(executor.resumeCalls))
	}
}

func TestSelector_NoRunningRuns(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	o, _, _, _ := newTestOrchestrator(store)

	if run := o.selectActiveRun(context.Background(), nil, testNow); run != nil {
		t.Errorf("expected nil active run, got %s", run.ID)
	}
}
