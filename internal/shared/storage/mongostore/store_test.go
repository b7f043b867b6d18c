package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// testStore 创建测试用 Store，使用独立数据库避免污染
func testStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}

	dbName := "catalog_sync_test"
	s, err := NewStore(uri, dbName)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	// 清空测试数据库
	ctx := context.Background()
	if err := s.db.Drop(ctx); err != nil {
		t.Fatalf("Failed to drop test database: %v", err)
	}
	// 重新创建索引
	if err := s.ensureIndexes(ctx); err != nil {
		t.Fatalf("Failed to create indexes: %v", err)
	}

	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})

	return s
}

// Compile-time interface check
var _ storage.Store = (*Store)(nil)

func TestRunLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	started := time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

	run := &model.Run{
		ID:          "run-m1",
		Status:      model.RunStatusRunning,
		TriggerType: model.TriggerTypeScheduled,
		Attempt:     1,
		Steps:       model.NewSteps(),
		StartedAt:   started,
		CreatedAt:   started,
		UpdatedAt:   started,
	}

	// Create
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	// Duplicate insert
	if err := s.CreateRun(ctx, run); !errors.Is(err, storage.ErrDuplicate) {
		t.Fatalf("CreateRun duplicate error = %v, want ErrDuplicate", err)
	}

	// Get
	got, err := s.GetRun(ctx, "run-m1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != model.RunStatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if len(got.Steps) != len(model.PipelineSteps) {
		t.Errorf("Steps len = %d, want %d", len(got.Steps), len(model.PipelineSteps))
	}

	// Get not found
	if _, err := s.GetRun(ctx, "nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetRun(nonexistent) error = %v, want ErrNotFound", err)
	}

	// ListRunningRuns
	runs, err := s.ListRunningRuns(ctx)
	if err != nil {
		t.Fatalf("ListRunningRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("ListRunningRuns len = %d, want 1", len(runs))
	}

	// 条件终态写入
	msg := "stalled"
	term := storage.RunTerminal{
		Status:       model.RunStatusTimeout,
		FinishedAt:   started.Add(2 * time.Hour),
		RuntimeMS:    7200000,
		ErrorMessage: &msg,
	}
	if err := s.UpdateRunIfRunning(ctx, "run-m1", term); err != nil {
		t.Fatalf("UpdateRunIfRunning: %v", err)
	}

	// 第二次条件写应冲突
	if err := s.UpdateRunIfRunning(ctx, "run-m1", term); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("second UpdateRunIfRunning error = %v, want ErrConflict", err)
	}

	got, _ = s.GetRun(ctx, "run-m1")
	if got.Status != model.RunStatusTimeout {
		t.Errorf("Status after terminal write = %q, want timeout", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "stalled" {
		t.Errorf("ErrorMessage = %v, want stalled", got.ErrorMessage)
	}

	// 终止后不再出现在活跃列表
	runs, _ = s.ListRunningRuns(ctx)
	if len(runs) != 0 {
		t.Errorf("ListRunningRuns after finish len = %d, want 0", len(runs))
	}

	// LatestPrimaryRun 看到刚终止的主执行
	latest, err := s.LatestPrimaryRun(ctx)
	if err != nil {
		t.Fatalf("LatestPrimaryRun: %v", err)
	}
	if latest.ID != "run-m1" {
		t.Errorf("LatestPrimaryRun = %q, want run-m1", latest.ID)
	}
}

func TestEventSequencing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

	events := []*model.Event{
		{RunID: "run-e1", Level: model.EventLevelInfo, Message: model.EventRunStarted,
			Details: json.RawMessage(`{"attempt":1}`), CreatedAt: base},
		{RunID: "run-e1", Level: model.EventLevelInfo, Message: model.EventStepStarted, CreatedAt: base.Add(time.Minute)},
	}
	if err := s.AppendEvents(ctx, events); err != nil {
		t.Fatalf("AppendEvents: %v", err)
	}
	if events[0].ID == 0 || events[1].ID != events[0].ID+1 {
		t.Errorf("sequence IDs = %d, %d, want consecutive non-zero", events[0].ID, events[1].ID)
	}

	diag := &model.Event{RunID: "run-e1", Level: model.EventLevelInfo,
		Message: model.EventResumeSkippedActive, CreatedAt: base.Add(2 * time.Minute)}
	if err := s.AppendEvent(ctx, diag); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if diag.ID != events[1].ID+1 {
		t.Errorf("diag ID = %d, want %d", diag.ID, events[1].ID+1)
	}

	// 全量查询看到诊断事件
	latest, err := s.LatestEvent(ctx, "run-e1")
	if err != nil {
		t.Fatalf("LatestEvent: %v", err)
	}
	if latest.Message != model.EventResumeSkippedActive {
		t.Errorf("LatestEvent = %q, want diagnostic", latest.Message)
	}

	// 活跃度查询跳过诊断噪音
	progress, err := s.LatestProgressEvent(ctx, "run-e1")
	if err != nil {
		t.Fatalf("LatestProgressEvent: %v", err)
	}
	if progress.Message != model.EventStepStarted {
		t.Errorf("LatestProgressEvent = %q, want step_started", progress.Message)
	}

	// 升序列出
	listed, err := s.ListEventsByRun(ctx, "run-e1", 10, 0)
	if err != nil {
		t.Fatalf("ListEventsByRun: %v", err)
	}
	if len(listed) != 3 {
		t.Fatalf("ListEventsByRun len = %d, want 3", len(listed))
	}
	if listed[0].Message != model.EventRunStarted {
		t.Errorf("first event = %q, want run_started", listed[0].Message)
	}
}

func TestScheduleConfigRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if _, err := s.GetScheduleConfig(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetScheduleConfig on empty = %v, want ErrNotFound", err)
	}

	cfg := model.DefaultScheduleConfig()
	cfg.Enabled = true
	cfg.MaxAttempts = 99
	if err := s.PutScheduleConfig(ctx, cfg); err != nil {
		t.Fatalf("PutScheduleConfig: %v", err)
	}

	got, err := s.GetScheduleConfig(ctx)
	if err != nil {
		t.Fatalf("GetScheduleConfig: %v", err)
	}
	if !got.Enabled {
		t.Error("Enabled = false, want true")
	}
	if got.MaxAttempts != model.MaxAttemptsCeiling {
		t.Errorf("MaxAttempts = %d, want capped to %d", got.MaxAttempts, model.MaxAttemptsCeiling)
	}

	if err := s.DisableSchedule(ctx, "too many failures"); err != nil {
		t.Fatalf("DisableSchedule: %v", err)
	}
	got, _ = s.GetScheduleConfig(ctx)
	if got.Enabled {
		t.Error("Enabled after disable = true, want false")
	}
	if got.DisabledReason == nil || *got.DisabledReason != "too many failures" {
		t.Errorf("DisabledReason = %v, want reason string", got.DisabledReason)
	}
}

func TestUserRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	user := &model.User{
		ID:           "user-1",
		Email:        "admin@example.com",
		Username:     "admin",
		PasswordHash: "$2a$10$hash",
		Role:         model.UserRoleAdmin,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// 邮箱唯一索引
	dup := *user
	dup.ID = "user-2"
	if err := s.CreateUser(ctx, &dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("CreateUser duplicate email error = %v, want ErrDuplicate", err)
	}

	got, err := s.GetUserByEmail(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != "user-1" {
		t.Errorf("ID = %q, want user-1", got.ID)
	}

	if err := s.UpdateUserPassword(ctx, "user-1", "$2a$10$new"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}
	got, _ = s.GetUserByID(ctx, "user-1")
	if got.PasswordHash != "$2a$10$new" {
		t.Errorf("PasswordHash = %q, want updated", got.PasswordHash)
	}
}
