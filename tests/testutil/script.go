package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"catalog-sync/internal/pipeline"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// ============================================================================
// FakeClock - 虚拟时钟
// ============================================================================

// FakeClock 可手动推进的虚拟时钟
//
// 集成测试用它提供 tick 的基准时刻：重试延迟、活跃窗口这类以分钟计
// 的判定靠拨钟验证，而不是真实等待。
type FakeClock struct {
	mu sync.Mutex
	t  time.Time
}

// NewFakeClock 创建固定起点的虚拟时钟
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{t: start}
}

// Now 返回当前虚拟时刻
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

// Advance 把虚拟时钟向前拨 d，返回新时刻
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

// ============================================================================
// ScriptedExecutor - 脚本化执行器
// ============================================================================

// ScriptedExecutor 进程内脚本化执行器
//
// 实现 pipeline.Executor 但不跑真实流水线：每次 Resume 恰好推进一个
// 步骤然后让出，步骤结果由注入点决定。推进节奏完全由调度器的 resume
// 决策驱动，测试据此观察每个 tick 的处置。事件时间戳取虚拟时钟，
// 与调度器的活跃度判定同一时间轴。
type ScriptedExecutor struct {
	Store storage.Store
	Now   func() time.Time

	// FailStep 非空时，推进到该步骤即永久失败（执行器写 failed 终态）
	FailStep string

	// WarnStep 非空时，该步骤带警告完成
	WarnStep string

	// ResumeErr 非空时，Resume 调用直接报错（模拟执行器失联）
	ResumeErr error

	mu  sync.Mutex
	seq int
}

// Start 创建一个新的 Run 并记录 run_started 事件
func (s *ScriptedExecutor) Start(ctx context.Context, req *pipeline.StartRequest) (string, error) {
	s.mu.Lock()
	s.seq++
	id := fmt.Sprintf("run-it-%03d", s.seq)
	s.mu.Unlock()

	now := s.Now()
	run := &model.Run{
		ID:          id,
		Status:      model.RunStatusRunning,
		TriggerType: req.TriggerType,
		Attempt:     req.Attempt,
		Steps:       model.NewSteps(),
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if run.TriggerType == "" {
		run.TriggerType = model.TriggerTypeScheduled
	}
	if run.Attempt < 1 {
		run.Attempt = 1
	}
	if err := s.Store.CreateRun(ctx, run); err != nil {
		return "", err
	}
	s.appendEvent(ctx, id, model.EventLevelInfo, model.EventRunStarted, map[string]any{
		"trigger_type": string(run.TriggerType),
		"attempt":      run.Attempt,
	})
	return id, nil
}

// Resume 推进一个步骤后让出
//
// 与真实执行器同一契约：失败、取消由执行器写终态；全部步骤完成时只
// 追加 run_completed 事件，Run 保持 running，收尾留给调度器。
func (s *ScriptedExecutor) Resume(ctx context.Context, runID string) (*pipeline.ResumeResult, error) {
	if s.ResumeErr != nil {
		return nil, s.ResumeErr
	}

	run, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status == model.RunStatusFailed {
		return &pipeline.ResumeResult{Status: pipeline.ResumeStatusFailed}, nil
	}
	if run.IsTerminal() {
		return &pipeline.ResumeResult{Status: pipeline.ResumeStatusCompleted}, nil
	}
	if run.CancelRequested {
		s.finish(ctx, run, model.RunStatusCancelled, nil)
		return &pipeline.ResumeResult{Status: pipeline.ResumeStatusCompleted}, nil
	}

	step, _, ok := run.Steps.Current()
	if !ok {
		return &pipeline.ResumeResult{Status: pipeline.ResumeStatusCompleted}, nil
	}

	if s.FailStep == step {
		msg := fmt.Sprintf("simulated failure in step %s", step)
		run.Steps[step] = model.StepState{
			Status: model.StepStatusFailed,
			Retry:  &model.StepRetry{Count: 1, LastError: &msg},
		}
		if err := s.Store.UpdateRunProgress(ctx, run.ID, run.Steps, run.WarningCount); err != nil {
			return nil, err
		}
		s.finish(ctx, run, model.RunStatusFailed, &msg)
		return &pipeline.ResumeResult{Status: pipeline.ResumeStatusFailed, CurrentStep: step}, nil
	}

	status := model.StepStatusSuccess
	warnings := run.WarningCount
	details := map[string]any{"step": step}
	if s.WarnStep == step {
		status = model.StepStatusWarning
		warnings++
		details["warning"] = "simulated warning"
	}
	duration := int64(1000)
	run.Steps[step] = model.StepState{Status: status, DurationMS: &duration}
	if err := s.Store.UpdateRunProgress(ctx, run.ID, run.Steps, warnings); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, run.ID, model.EventLevelInfo, model.EventStepCompleted, details)

	if run.Steps.AllDone() {
		s.appendEvent(ctx, run.ID, model.EventLevelInfo, model.EventRunCompleted,
			map[string]any{"warning_count": warnings})
		return &pipeline.ResumeResult{Status: pipeline.ResumeStatusCompleted}, nil
	}
	return &pipeline.ResumeResult{Status: pipeline.ResumeStatusYielded, CurrentStep: step}, nil
}

// finish 执行器侧终态写入（failed / cancelled）
func (s *ScriptedExecutor) finish(ctx context.Context, run *model.Run, status model.RunStatus, errMsg *string) {
	now := s.Now()
	term := storage.RunTerminal{
		Status:       status,
		FinishedAt:   now,
		RuntimeMS:    now.Sub(run.StartedAt).Milliseconds(),
		ErrorMessage: errMsg,
	}
	if err := s.Store.UpdateRunIfRunning(ctx, run.ID, term); err != nil {
		return
	}

	level := model.EventLevelError
	if status == model.RunStatusCancelled {
		level = model.EventLevelWarn
	}
	details := map[string]any{"status": string(status)}
	if errMsg != nil {
		details["error"] = *errMsg
	}
	s.appendEvent(ctx, run.ID, level, model.EventRunCompleted, details)
}

// appendEvent 追加事件，时间戳回拨到虚拟时刻
func (s *ScriptedExecutor) appendEvent(ctx context.Context, runID string, level model.EventLevel, message string, details map[string]any) {
	event := model.NewEvent(runID, level, message, details)
	event.CreatedAt = s.Now()
	s.Store.AppendEvent(ctx, event)
}
