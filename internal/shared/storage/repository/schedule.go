// Package repository 排程配置相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"time"

	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// scheduleColumns 排程配置表的查询列
const scheduleColumns = `id, enabled, schedule_type, frequency_minutes, daily_time,
	max_attempts, retry_delay_minutes, run_timeout_minutes, disabled_reason, updated_at`

// GetScheduleConfig 读取单例排程配置
func (s *Store) GetScheduleConfig(ctx context.Context) (*model.ScheduleConfig, error) {
	query := s.rebind(`SELECT ` + scheduleColumns + ` FROM schedule_config WHERE id = $1`)
	cfg := &model.ScheduleConfig{}
	err := s.db.QueryRowContext(ctx, query, model.ScheduleConfigID).Scan(
		&cfg.ID, &cfg.Enabled, &cfg.ScheduleType, &cfg.FrequencyMinutes, &cfg.DailyTime,
		&cfg.MaxAttempts, &cfg.RetryDelayMinutes, &cfg.RunTimeoutMinutes,
		&cfg.DisabledReason, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	return cfg, err
}

// PutScheduleConfig 全量写入排程配置（upsert），刷新 updated_at
//
// updated_at 是失败链分析的回溯边界，操作员每次保存都会前移它。
func (s *Store) PutScheduleConfig(ctx context.Context, cfg *model.ScheduleConfig) error {
	cfg.Normalize()
	cfg.UpdatedAt = time.Now().UTC()

	conflict := s.dialect.UpsertConflict("id", []string{
		"enabled = EXCLUDED.enabled",
		"schedule_type = EXCLUDED.schedule_type",
		"frequency_minutes = EXCLUDED.frequency_minutes",
		"daily_time = EXCLUDED.daily_time",
		"max_attempts = EXCLUDED.max_attempts",
		"retry_delay_minutes = EXCLUDED.retry_delay_minutes",
		"run_timeout_minutes = EXCLUDED.run_timeout_minutes",
		"disabled_reason = EXCLUDED.disabled_reason",
		"updated_at = EXCLUDED.updated_at",
	})
	query := s.rebind(`
		INSERT INTO schedule_config (id, enabled, schedule_type, frequency_minutes, daily_time,
			max_attempts, retry_delay_minutes, run_timeout_minutes, disabled_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		` + conflict)
	_, err := s.db.ExecContext(ctx, query,
		cfg.ID, cfg.Enabled, cfg.ScheduleType, cfg.FrequencyMinutes, cfg.DailyTime,
		cfg.MaxAttempts, cfg.RetryDelayMinutes, cfg.RunTimeoutMinutes,
		cfg.DisabledReason, cfg.UpdatedAt)
	return err
}

// DisableSchedule 自动停用：置 enabled=false 并记录原因
//
// 自动停用策略唯一允许的配置写入，不触碰其余排程字段。
func (s *Store) DisableSchedule(ctx context.Context, reason string) error {
	query := s.rebind(`UPDATE schedule_config
		SET enabled = ` + s.dialect.BooleanLiteral(false) + `, disabled_reason = $1, updated_at = $2
		WHERE id = $3`)
	res, err := s.db.ExecContext(ctx, query, reason, time.Now().UTC(), model.ScheduleConfigID)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
