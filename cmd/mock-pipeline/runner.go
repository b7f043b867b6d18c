package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"catalog-sync/internal/pipeline"
	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/lock"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// runner 脚本化执行器
//
// 每个活跃 Run 由一个工作协程推进；协程在失败、让出、停滞注入点
// 或取消标志处停下，其余协调交给调度器。
type runner struct {
	store storage.Store
	bus   eventbus.RunEventBus // 可为 nil（Redis 不可用）
	locks lock.Manager
	token string

	stepDelay  time.Duration
	failStep   string
	warnStep   string
	yieldAfter string
	stallAfter string

	mu     sync.Mutex
	active map[string]bool
}

// ============================================================================
// HTTP 协议
// ============================================================================

func (r *runner) authorize(req *http.Request) bool {
	if r.token == "" {
		return true
	}
	return req.Header.Get("X-Pipeline-Token") == r.token
}

// handleStart 创建 Run 并启动工作协程
// POST /api/v1/pipeline/start
func (r *runner) handleStart(w http.ResponseWriter, req *http.Request) {
	if !r.authorize(req) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid pipeline token"})
		return
	}

	var startReq pipeline.StartRequest
	if err := json.NewDecoder(req.Body).Decode(&startReq); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if startReq.Attempt <= 0 {
		startReq.Attempt = 1
	}
	if startReq.TriggerType == "" {
		startReq.TriggerType = model.TriggerTypeScheduled
	}

	ctx := req.Context()

	// 单活跃 Run 约束在执行器侧同样成立
	running, err := r.store.ListRunningRuns(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if len(running) > 0 {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "a run is already active",
			"run_id": running[0].ID,
		})
		return
	}

	now := time.Now()
	run := &model.Run{
		ID:          newRunID(),
		Status:      model.RunStatusRunning,
		TriggerType: startReq.TriggerType,
		Attempt:     startReq.Attempt,
		Steps:       model.NewSteps(),
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	r.recordEvent(ctx, run.ID, model.EventLevelInfo, model.EventRunStarted, map[string]any{
		"trigger_type": string(startReq.TriggerType),
		"attempt":      startReq.Attempt,
	})

	log.Printf("[pipeline.start] run_id=%s trigger=%s attempt=%d",
		run.ID, startReq.TriggerType, startReq.Attempt)
	go r.advance(run.ID)

	writeJSON(w, http.StatusCreated, pipeline.StartResponse{RunID: run.ID})
}

// handleResume 唤醒停滞或让出的 Run
// POST /api/v1/pipeline/resume
func (r *runner) handleResume(w http.ResponseWriter, req *http.Request) {
	if !r.authorize(req) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid pipeline token"})
		return
	}

	var resumeReq pipeline.ResumeRequest
	if err := json.NewDecoder(req.Body).Decode(&resumeReq); err != nil || resumeReq.RunID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := req.Context()
	run, err := r.store.GetRun(ctx, resumeReq.RunID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}

	switch {
	case run.Status == model.RunStatusFailed:
		writeJSON(w, http.StatusOK, pipeline.ResumeResult{Status: pipeline.ResumeStatusFailed})
		return
	case run.IsTerminal():
		writeJSON(w, http.StatusOK, pipeline.ResumeResult{Status: pipeline.ResumeStatusCompleted})
		return
	case run.Steps.AllDone():
		writeJSON(w, http.StatusOK, pipeline.ResumeResult{Status: pipeline.ResumeStatusCompleted})
		return
	}

	step, _, _ := run.Steps.Current()
	if !r.isActive(run.ID) {
		log.Printf("[pipeline.resume] run_id=%s step=%s", run.ID, step)
		go r.advance(run.ID)
	}
	writeJSON(w, http.StatusOK, pipeline.ResumeResult{
		Status:      pipeline.ResumeStatusYielded,
		CurrentStep: step,
	})
}

// ============================================================================
// 步骤推进
// ============================================================================

// advance 逐步推进 Run
//
// 工作期间持有 Run 锁。每轮迭代都从存储重读 Run：调度器可能已把
// Run 标成终态（强制超时、多活清理），取消标志也在步骤间观察。
func (r *runner) advance(runID string) {
	if !r.markActive(runID) {
		return
	}
	defer r.unmarkActive(runID)

	ctx := context.Background()

	lockName := "run:" + runID
	if ok, err := r.locks.Acquire(ctx, lockName, "mock-pipeline", 10*time.Minute); err != nil {
		log.Printf("[pipeline.lock.failed] run_id=%s error=%v", runID, err)
	} else if !ok {
		log.Printf("[pipeline.lock.held] run_id=%s", runID)
		return
	}
	defer r.locks.Release(ctx, lockName)

	for {
		run, err := r.store.GetRun(ctx, runID)
		if err != nil {
			log.Printf("[pipeline.advance.failed] run_id=%s error=%v", runID, err)
			return
		}
		if run.Status != model.RunStatusRunning {
			log.Printf("[pipeline.advance.stop] run_id=%s status=%s", runID, run.Status)
			return
		}
		if run.CancelRequested {
			r.finishCancelled(ctx, run)
			return
		}

		step, _, ok := run.Steps.Current()
		if !ok {
			// 所有步骤完成：报告 run_completed，终态由调度器幂等收尾
			r.recordEvent(ctx, runID, model.EventLevelInfo, model.EventRunCompleted, map[string]any{
				"warning_count": run.WarningCount,
			})
			log.Printf("[pipeline.completed] run_id=%s warnings=%d", runID, run.WarningCount)
			return
		}

		if !r.runStep(ctx, run, step) {
			return
		}

		if step == r.yieldAfter {
			r.recordEvent(ctx, runID, model.EventLevelInfo, model.EventRunYielded, map[string]any{
				"after_step": step,
			})
			log.Printf("[pipeline.yield] run_id=%s after_step=%s", runID, step)
			return
		}
		if step == r.stallAfter {
			// 不落任何事件，模拟执行器卡死
			log.Printf("[pipeline.stall] run_id=%s after_step=%s", runID, step)
			return
		}
	}
}

// runStep 推进单个步骤：置 running、模拟耗时、写结果。
// 返回 false 表示 Run 不再可推进（失败或写入出错）。
func (r *runner) runStep(ctx context.Context, run *model.Run, step string) bool {
	steps := run.Steps
	steps[step] = model.StepState{Status: model.StepStatusRunning}
	if err := r.store.UpdateRunProgress(ctx, run.ID, steps, run.WarningCount); err != nil {
		log.Printf("[pipeline.step.update.failed] run_id=%s step=%s error=%v", run.ID, step, err)
		return false
	}
	r.recordEvent(ctx, run.ID, model.EventLevelInfo, model.EventStepStarted, map[string]any{"step": step})

	time.Sleep(r.stepDelay)

	durationMS := r.stepDelay.Milliseconds()

	if step == r.failStep {
		r.finishFailed(ctx, run, step, durationMS)
		return false
	}

	status := model.StepStatusSuccess
	warnings := run.WarningCount
	details := map[string]any{"step": step, "duration_ms": durationMS}
	if step == r.warnStep {
		status = model.StepStatusWarning
		warnings++
		details["warning"] = "simulated warning"
	}

	steps[step] = model.StepState{Status: status, DurationMS: &durationMS}
	if err := r.store.UpdateRunProgress(ctx, run.ID, steps, warnings); err != nil {
		log.Printf("[pipeline.step.update.failed] run_id=%s step=%s error=%v", run.ID, step, err)
		return false
	}
	r.recordEvent(ctx, run.ID, model.EventLevelInfo, model.EventStepCompleted, details)
	return true
}

// finishFailed 注入的失败：写步骤失败状态与 Run 终态
func (r *runner) finishFailed(ctx context.Context, run *model.Run, step string, durationMS int64) {
	msg := fmt.Sprintf("simulated failure in step %s", step)

	steps := run.Steps
	steps[step] = model.StepState{
		Status:     model.StepStatusFailed,
		DurationMS: &durationMS,
		Retry:      &model.StepRetry{Count: 0, LastError: &msg},
	}
	if err := r.store.UpdateRunProgress(ctx, run.ID, steps, run.WarningCount); err != nil {
		log.Printf("[pipeline.step.update.failed] run_id=%s step=%s error=%v", run.ID, step, err)
	}

	term := storage.RunTerminal{
		Status:       model.RunStatusFailed,
		FinishedAt:   time.Now(),
		RuntimeMS:    time.Since(run.StartedAt).Milliseconds(),
		ErrorMessage: &msg,
	}
	if err := r.store.UpdateRunIfRunning(ctx, run.ID, term); err != nil {
		log.Printf("[pipeline.fail.write.failed] run_id=%s error=%v", run.ID, err)
		return
	}
	r.recordEvent(ctx, run.ID, model.EventLevelError, model.EventRunCompleted, map[string]any{
		"status": string(model.RunStatusFailed),
		"step":   step,
		"error":  msg,
	})
	log.Printf("[pipeline.failed] run_id=%s step=%s", run.ID, step)
}

// finishCancelled 协作式取消：步骤间观察到取消标志后写终态
func (r *runner) finishCancelled(ctx context.Context, run *model.Run) {
	term := storage.RunTerminal{
		Status:     model.RunStatusCancelled,
		FinishedAt: time.Now(),
		RuntimeMS:  time.Since(run.StartedAt).Milliseconds(),
	}
	if err := r.store.UpdateRunIfRunning(ctx, run.ID, term); err != nil {
		log.Printf("[pipeline.cancel.write.failed] run_id=%s error=%v", run.ID, err)
		return
	}
	r.recordEvent(ctx, run.ID, model.EventLevelWarn, model.EventRunCompleted, map[string]any{
		"status": string(model.RunStatusCancelled),
	})
	log.Printf("[pipeline.cancelled] run_id=%s", run.ID)
}

// ============================================================================
// 工具方法
// ============================================================================

// recordEvent 事件落库并尽力推送到事件总线
func (r *runner) recordEvent(ctx context.Context, runID string, level model.EventLevel, message string, details map[string]any) {
	event := model.NewEvent(runID, level, message, details)
	if err := r.store.AppendEvent(ctx, event); err != nil {
		log.Printf("[pipeline.event.failed] run_id=%s message=%s error=%v", runID, message, err)
		return
	}
	if r.bus == nil {
		return
	}

	var busDetails map[string]interface{}
	if len(event.Details) > 0 {
		_ = json.Unmarshal(event.Details, &busDetails)
	}
	busEvent := &eventbus.RunEvent{
		RunID:     runID,
		Seq:       event.ID,
		Level:     string(event.Level),
		Message:   event.Message,
		Timestamp: event.CreatedAt,
		Details:   busDetails,
	}
	if err := r.bus.PublishRunEvent(ctx, runID, busEvent); err != nil {
		log.Printf("[pipeline.event.publish.failed] run_id=%s error=%v", runID, err)
	}
}

func (r *runner) markActive(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active[runID] {
		return false
	}
	r.active[runID] = true
	return true
}

func (r *runner) unmarkActive(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, runID)
}

func (r *runner) isActive(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[runID]
}

// newRunID 生成 run-xxxxxxxx 形式的标识
func newRunID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return "run-" + hex.EncodeToString(b)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
