// Package repository Run 相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
	"catalog-sync/internal/shared/storage/dbutil"
)

// runColumns Run 表的查询列
const runColumns = `id, status, trigger_type, attempt, steps, warning_count,
	cancel_requested, cancelled_by_user, error_message,
	started_at, finished_at, runtime_ms, created_at, updated_at`

// CreateRun 创建 Run（仅流水线执行器侧调用，调度器从不插入 Run 行）
func (s *Store) CreateRun(ctx context.Context, run *model.Run) error {
	if err := run.Steps.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO runs (id, status, trigger_type, attempt, steps, warning_count,
			cancel_requested, cancelled_by_user, error_message,
			started_at, finished_at, runtime_ms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`)
	_, err = s.db.ExecContext(ctx, query,
		run.ID, run.Status, run.TriggerType, run.Attempt, steps, run.WarningCount,
		run.CancelRequested, run.CancelledByUser, run.ErrorMessage,
		run.StartedAt, run.FinishedAt, run.RuntimeMS, run.CreatedAt, run.UpdatedAt)
	return err
}

// GetRun 获取 Run
func (s *Store) GetRun(ctx context.Context, id string) (*model.Run, error) {
	query := s.rebind(`SELECT ` + runColumns + ` FROM runs WHERE id = $1`)
	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return run, err
}

// scanRun 辅助函数
func scanRun(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Run, error) {
	run := &model.Run{}
	var steps *[]byte
	err := scanner.Scan(
		&run.ID, &run.Status, &run.TriggerType, &run.Attempt, &steps, &run.WarningCount,
		&run.CancelRequested, &run.CancelledByUser, &run.ErrorMessage,
		&run.StartedAt, &run.FinishedAt, &run.RuntimeMS, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if steps != nil && len(*steps) > 0 {
		if err := json.Unmarshal(*steps, &run.Steps); err != nil {
			return nil, fmt.Errorf("run %s: malformed steps: %w", run.ID, err)
		}
	}
	return run, nil
}

// scanRuns 批量扫描
func scanRuns(rows *sql.Rows) ([]*model.Run, error) {
	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRuns 分页列出 Run，可按状态过滤
func (s *Store) ListRuns(ctx context.Context, status string, limit, offset int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	base := `SELECT ` + runColumns + ` FROM runs`
	var conditions []string
	var args []interface{}
	if status != "" {
		conditions = append(conditions, "status = $1")
		args = append(args, status)
	}
	query, args := dbutil.BuildDynamicQuery(s.dialect, base, conditions, args)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d OFFSET %d", limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ListRunningRuns 列出所有 running 状态的 Run，按启动时间降序
//
// 第一条即本 tick 的"当前活跃 Run"；其余是多活异常的清理候选。
func (s *Store) ListRunningRuns(ctx context.Context) ([]*model.Run, error) {
	query := s.rebind(`SELECT ` + runColumns + ` FROM runs
		WHERE status = 'running' ORDER BY started_at DESC, created_at DESC`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// LatestScheduledRun 最近启动的 scheduled 触发 Run（任意 attempt）
func (s *Store) LatestScheduledRun(ctx context.Context) (*model.Run, error) {
	query := s.rebind(`SELECT ` + runColumns + ` FROM runs
		WHERE trigger_type = 'scheduled' ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return run, err
}

// LatestPrimaryRun 最近启动的已终止主执行（scheduled + attempt=1）
func (s *Store) LatestPrimaryRun(ctx context.Context) (*model.Run, error) {
	query := s.rebind(`SELECT ` + runColumns + ` FROM runs
		WHERE trigger_type = 'scheduled' AND attempt = 1 AND status != 'running'
		ORDER BY started_at DESC LIMIT 1`)
	run, err := scanRun(s.db.QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return run, err
}

// ListPrimaryRunsSince since 之后启动的主执行，按启动时间降序
func (s *Store) ListPrimaryRunsSince(ctx context.Context, since time.Time, limit int) ([]*model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.rebind(`SELECT `+runColumns+` FROM runs
		WHERE trigger_type = 'scheduled' AND attempt = 1 AND started_at > $1
		ORDER BY started_at DESC LIMIT $2`)
	rows, err := s.db.QueryContext(ctx, query, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRuns(rows)
}

// UpdateRunIfRunning 条件终态写入：仅当 Run 仍为 running 时生效
//
// 并发 tick 下的幂等保证：重复收尾/重复超时只有第一次写入生效，
// 之后的调用拿到 ErrConflict，由调用方按无害处理。
// ErrorMessage 为 nil 时保留行上已有的错误信息。
func (s *Store) UpdateRunIfRunning(ctx context.Context, id string, term storage.RunTerminal) error {
	query := s.rebind(`UPDATE runs
		SET status = $1, finished_at = $2, runtime_ms = $3,
		    error_message = COALESCE($4, error_message), updated_at = $5
		WHERE id = $6 AND status = 'running'`)
	res, err := s.db.ExecContext(ctx, query,
		term.Status, term.FinishedAt, term.RuntimeMS, term.ErrorMessage, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrConflict
	}
	return nil
}

// UpdateRunProgress 执行器侧的推进写入：步骤映射 + 累计警告数
func (s *Store) UpdateRunProgress(ctx context.Context, id string, steps model.Steps, warningCount int) error {
	if err := steps.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	data, err := json.Marshal(steps)
	if err != nil {
		return err
	}

	query := s.rebind(`UPDATE runs SET steps = $1, warning_count = $2, updated_at = $3 WHERE id = $4`)
	res, err := s.db.ExecContext(ctx, query, data, warningCount, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateRunCancel 置取消标志
func (s *Store) UpdateRunCancel(ctx context.Context, id string, requested, byUser bool) error {
	query := s.rebind(`UPDATE runs
		SET cancel_requested = $1, cancelled_by_user = $2, updated_at = $3 WHERE id = $4`)
	res, err := s.db.ExecContext(ctx, query, requested, byUser, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
