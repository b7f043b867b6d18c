package orchestrator

import (
	"context"
	"errors"
	"sort"
	"time"

	"catalog-sync/internal/notify"
	"catalog-sync/internal/pipeline"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/objstore"
	"catalog-sync/internal/shared/storage"
)

// testNow 所有用例共用的基准时刻，时间全部相对它构造
var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// errTestStore 模拟存储层故障
var errTestStore = errors.New("store unavailable")

// ============================================================================
// Mock 实现（实现 Store / pipeline.Executor / lock.Manager / notify.Notifier）
// ============================================================================

// fakeStore 内存存储，实现调度器依赖的 Store 接口
type fakeStore struct {
	config *model.ScheduleConfig
	runs   map[string]*model.Run
	events map[string][]*model.Event

	// 控制行为
	getConfigErr    error
	listRunningErr  error
	getRunErr       error
	updateErr       error
	disableErr      error
	disableCalls    int
	appendedMessage []string // 本次测试期间追加的事件标签，按顺序
}

func newFakeStore(config *model.ScheduleConfig) *fakeStore {
	return &fakeStore{
		config: config,
		runs:   make(map[string]*model.Run),
		events: make(map[string][]*model.Event),
	}
}

func (s *fakeStore) addRun(run *model.Run) {
	s.runs[run.ID] = run
}

// addEvent 直接种一条事件（模拟执行器侧写入的历史）
func (s *fakeStore) addEvent(runID, message string, at time.Time) {
	s.events[runID] = append(s.events[runID], &model.Event{
		RunID:     runID,
		Level:     model.EventLevelInfo,
		Message:   message,
		CreatedAt: at,
	})
}

func (s *fakeStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.runs[run.ID] = run
	return nil
}

func (s *fakeStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	if s.getRunErr != nil {
		return nil, s.getRunErr
	}
	run, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (s *fakeStore) ListRuns(ctx context.Context, status string, limit, offset int) ([]*model.Run, error) {
	var result []*model.Run
	for _, run := range s.runs {
		if status == "" || string(run.Status) == status {
			result = append(result, run)
		}
	}
	sortRunsByStartDesc(result)
	return result, nil
}

func (s *fakeStore) ListRunningRuns(ctx context.Context) ([]*model.Run, error) {
	if s.listRunningErr != nil {
		return nil, s.listRunningErr
	}
	var result []*model.Run
	for _, run := range s.runs {
		if run.IsRunning() {
			result = append(result, run)
		}
	}
	sortRunsByStartDesc(result)
	return result, nil
}

func (s *fakeStore) LatestScheduledRun(ctx context.Context) (*model.Run, error) {
	var latest *model.Run
	for _, run := range s.runs {
		if run.TriggerType != model.TriggerTypeScheduled {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *fakeStore) LatestPrimaryRun(ctx context.Context) (*model.Run, error) {
	var latest *model.Run
	for _, run := range s.runs {
		if !run.IsPrimary() || run.IsRunning() {
			continue
		}
		if latest == nil || run.StartedAt.After(latest.StartedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *fakeStore) ListPrimaryRunsSince(ctx context.Context, since time.Time, limit int) ([]*model.Run, error) {
	var result []*model.Run
	for _, run := range s.runs {
		if run.IsPrimary() && run.StartedAt.After(since) {
			result = append(result, run)
		}
	}
	sortRunsByStartDesc(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *fakeStore) UpdateRunIfRunning(ctx context.Context, id string, term storage.RunTerminal) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	run, ok := s.runs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !run.IsRunning() {
		return storage.ErrConflict
	}
	run.Status = term.Status
	finishedAt := term.FinishedAt
	runtimeMS := term.RuntimeMS
	run.FinishedAt = &finishedAt
	run.RuntimeMS = &runtimeMS
	if term.ErrorMessage != nil {
		run.ErrorMessage = term.ErrorMessage
	}
	return nil
}

func (s *fakeStore) UpdateRunProgress(ctx context.Context, id string, steps model.Steps, warningCount int) error {
	if run, ok := s.runs[id]; ok {
		run.Steps = steps
		run.WarningCount = warningCount
	}
	return nil
}

func (s *fakeStore) UpdateRunCancel(ctx context.Context, id string, requested, byUser bool) error {
	if run, ok := s.runs[id]; ok {
		run.CancelRequested = requested
		run.CancelledByUser = byUser
	}
	return nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, event *model.Event) error {
	s.events[event.RunID] = append(s.events[event.RunID], event)
	s.appendedMessage = append(s.appendedMessage, event.Message)
	return nil
}

func (s *fakeStore) AppendEvents(ctx context.Context, events []*model.Event) error {
	for _, event := range events {
		s.AppendEvent(ctx, event)
	}
	return nil
}

func (s *fakeStore) ListEventsByRun(ctx context.Context, runID string, limit, offset int) ([]*model.Event, error) {
	return s.events[runID], nil
}

func (s *fakeStore) LatestProgressEvent(ctx context.Context, runID string) (*model.Event, error) {
	events := s.events[runID]
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].IsProgress() {
			return events[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) LatestEvent(ctx context.Context, runID string) (*model.Event, error) {
	events := s.events[runID]
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return events[len(events)-1], nil
}

func (s *fakeStore) GetScheduleConfig(ctx context.Context) (*model.ScheduleConfig, error) {
	if s.getConfigErr != nil {
		return nil, s.getConfigErr
	}
	if s.config == nil {
		return nil, storage.ErrNotFound
	}
	copied := *s.config
	return &copied, nil
}

func (s *fakeStore) PutScheduleConfig(ctx context.Context, cfg *model.ScheduleConfig) error {
	s.config = cfg
	return nil
}

func (s *fakeStore) DisableSchedule(ctx context.Context, reason string) error {
	if s.disableErr != nil {
		return s.disableErr
	}
	s.disableCalls++
	s.config.Enabled = false
	s.config.DisabledReason = &reason
	s.config.UpdatedAt = time.Now().UTC()
	return nil
}

// hasEvent 判断某个 Run 的事件流里是否出现过指定标签
func (s *fakeStore) hasEvent(runID, message string) bool {
	for _, event := range s.events[runID] {
		if event.Message == message {
			return true
		}
	}
	return false
}

func sortRunsByStartDesc(runs []*model.Run) {
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}

// fakeExecutor 模拟流水线执行器
type fakeExecutor struct {
	startCalls   []*pipeline.StartRequest
	resumeCalls  []string
	startRunID   string
	startErr     error
	resumeResult *pipeline.ResumeResult
	resumeErr    error
}

func (e *fakeExecutor) Start(ctx context.Context, req *pipeline.StartRequest) (string, error) {
	e.startCalls = append(e.startCalls, req)
	if e.startErr != nil {
		return "", e.startErr
	}
	return e.startRunID, nil
}

func (e *fakeExecutor) Resume(ctx context.Context, runID string) (*pipeline.ResumeResult, error) {
	e.resumeCalls = append(e.resumeCalls, runID)
	if e.resumeErr != nil {
		return nil, e.resumeErr
	}
	if e.resumeResult != nil {
		return e.resumeResult, nil
	}
	return &pipeline.ResumeResult{Status: pipeline.ResumeStatusYielded}, nil
}

// fakeLockManager 记录锁操作
type fakeLockManager struct {
	released []string
}

func (l *fakeLockManager) Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (l *fakeLockManager) Release(ctx context.Context, name string) error {
	l.released = append(l.released, name)
	return nil
}

// fakeNotifier 记录通知载荷
type fakeNotifier struct {
	payloads []*notify.Payload
}

func (n *fakeNotifier) NotifyRunFinished(ctx context.Context, payload *notify.Payload) {
	n.payloads = append(n.payloads, payload)
}

// fakeArchiver 记录归档的报告
type fakeArchiver struct {
	reports   []*objstore.Report
	uploadErr error
}

func (a *fakeArchiver) UploadReport(ctx context.Context, report *objstore.Report) (string, error) {
	if a.uploadErr != nil {
		return "", a.uploadErr
	}
	a.reports = append(a.reports, report)
	return objstore.ReportKey(report.RunID), nil
}

// ============================================================================
// 构造辅助
// ============================================================================

// intervalConfig 间隔排程配置，updated_at 在一天前
func intervalConfig(frequencyMinutes int) *model.ScheduleConfig {
	return &model.ScheduleConfig{
		ID:                model.ScheduleConfigID,
		Enabled:           true,
		ScheduleType:      model.ScheduleTypeInterval,
		FrequencyMinutes:  frequencyMinutes,
		MaxAttempts:       3,
		RetryDelayMinutes: 5,
		RunTimeoutMinutes: 60,
		UpdatedAt:         testNow.Add(-24 * time.Hour),
	}
}

// dailyConfig 每日排程配置
func dailyConfig(dailyTime string) *model.ScheduleConfig {
	cfg := intervalConfig(360)
	cfg.ScheduleType = model.ScheduleTypeDaily
	cfg.DailyTime = dailyTime
	return cfg
}

// runningRun 构造一个 running 状态的 Run
func runningRun(id string, startedAt time.Time) *model.Run {
	return &model.Run{
		ID:          id,
		Status:      model.RunStatusRunning,
		TriggerType: model.TriggerTypeScheduled,
		Attempt:     1,
		Steps:       model.NewSteps(),
		StartedAt:   startedAt,
		CreatedAt:   startedAt,
		UpdatedAt:   startedAt,
	}
}

// finishedRun 构造一个终态 Run，执行耗时固定一分钟
func finishedRun(id string, status model.RunStatus, attempt int, finishedAt time.Time) *model.Run {
	startedAt := finishedAt.Add(-time.Minute)
	runtimeMS := int64(60_000)
	return &model.Run{
		ID:          id,
		Status:      status,
		TriggerType: model.TriggerTypeScheduled,
		Attempt:     attempt,
		Steps:       model.NewSteps(),
		StartedAt:   startedAt,
		FinishedAt:  &finishedAt,
		RuntimeMS:   &runtimeMS,
		CreatedAt:   startedAt,
		UpdatedAt:   finishedAt,
	}
}

// failedRunWithError 终态 failed 的 Run，带指定错误消息
func failedRunWithError(id string, message string, finishedAt time.Time) *model.Run {
	run := finishedRun(id, model.RunStatusFailed, 1, finishedAt)
	run.ErrorMessage = &message
	return run
}

// newTestOrchestrator 组装一个全 fake 依赖的调度器
func newTestOrchestrator(store *fakeStore) (*Orchestrator, *fakeExecutor, *fakeLockManager, *fakeNotifier) {
	executor := &fakeExecutor{startRunID: "run-new"}
	locks := &fakeLockManager{}
	notifier := &fakeNotifier{}
	o := New(Config{
		Store:    store,
		Executor: executor,
		Locks:    locks,
		Notifier: notifier,
	})
	return o, executor, locks, notifier
}
