// Package repository Event 相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
	"catalog-sync/internal/shared/storage/dbutil"
)

// eventColumns Event 表的查询列
const eventColumns = `id, run_id, level, message, details, created_at`

// diagnosticMessageList 活跃度判定排除的消息标签
var diagnosticMessageList = model.DiagnosticEventMessages()

// AppendEvent 追加单条事件
func (s *Store) AppendEvent(ctx context.Context, event *model.Event) error {
	query := s.rebind(`INSERT INTO events (run_id, level, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5)`)
	_, err := s.db.ExecContext(ctx, query,
		event.RunID, event.Level, event.Message, nullableBytes(event.Details), event.CreatedAt)
	return err
}

// AppendEvents 批量追加事件（单事务）
func (s *Store) AppendEvents(ctx context.Context, events []*model.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		s.rebind(`INSERT INTO events (run_id, level, message, details, created_at) VALUES ($1, $2, $3, $4, $5)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Level, e.Message, nullableBytes(e.Details), e.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListEventsByRun 分页获取 Run 的事件，按时间升序
func (s *Store) ListEventsByRun(ctx context.Context, runID string, limit, offset int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	query := s.rebind(`SELECT ` + eventColumns + ` FROM events
		WHERE run_id = $1 ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`)
	rows, err := s.db.QueryContext(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LatestProgressEvent Run 最近一条进度事件（排除诊断噪音）
//
// 活跃度 = "距这条事件的时间"。慢而仍在推进的 Run 不会因墙钟
// 年龄被误杀，调度器自己写的跳过事件也不会把死 Run 撑成活的。
func (s *Store) LatestProgressEvent(ctx context.Context, runID string) (*model.Event, error) {
	placeholders := dbutil.PlaceholderList(s.dialect, 2, len(diagnosticMessageList))
	query := s.rebind(fmt.Sprintf(`SELECT %s FROM events
		WHERE run_id = $1 AND message NOT IN (%s)
		ORDER BY created_at DESC, id DESC LIMIT 1`, eventColumns, placeholders))

	args := make([]interface{}, 0, 1+len(diagnosticMessageList))
	args = append(args, runID)
	for _, m := range diagnosticMessageList {
		args = append(args, m)
	}

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return event, err
}

// LatestEvent Run 最近一条事件（含诊断），供空闲宽限检查使用
func (s *Store) LatestEvent(ctx context.Context, runID string) (*model.Event, error) {
	query := s.rebind(`SELECT ` + eventColumns + ` FROM events
		WHERE run_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`)
	event, err := scanEvent(s.db.QueryRowContext(ctx, query, runID))
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return event, err
}

// scanEvent 辅助函数
func scanEvent(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.Event, error) {
	e := &model.Event{}
	var details *[]byte
	err := scanner.Scan(&e.ID, &e.RunID, &e.Level, &e.Message, &details, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if details != nil {
		e.Details = *details
	}
	return e, nil
}

// scanEvents 批量扫描
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// nullableBytes 空 JSON 以 NULL 入库，避免空串污染 details 列
func nullableBytes(raw []byte) interface{} {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "" {
		return nil
	}
	return []byte(raw)
}
