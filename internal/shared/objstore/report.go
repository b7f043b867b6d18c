package objstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"catalog-sync/internal/shared/model"
)

// Report 归档到对象存储的运行报告
//
// 收尾成功后由调度器生成并上传，内容是 Run 终态的自包含快照，
// 方便在数据库轮转后仍可追溯单次执行。
type Report struct {
	RunID        string            `json:"run_id"`
	Status       model.RunStatus   `json:"status"`
	TriggerType  model.TriggerType `json:"trigger_type"`
	Attempt      int               `json:"attempt"`
	Steps        model.Steps       `json:"steps,omitempty"`
	WarningCount int               `json:"warning_count"`
	ErrorMessage *string           `json:"error_message,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	RuntimeMS    *int64            `json:"runtime_ms,omitempty"`
	EventCount   int               `json:"event_count"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// BuildReport 从 Run 终态记录构造报告
func BuildReport(run *model.Run, eventCount int) *Report {
	return &Report{
		RunID:        run.ID,
		Status:       run.Status,
		TriggerType:  run.TriggerType,
		Attempt:      run.Attempt,
		Steps:        run.Steps,
		WarningCount: run.WarningCount,
		ErrorMessage: run.ErrorMessage,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
		RuntimeMS:    run.RuntimeMS,
		EventCount:   eventCount,
		GeneratedAt:  time.Now().UTC(),
	}
}

// ReportKey 返回 Run 报告的对象键
func ReportKey(runID string) string {
	return fmt.Sprintf("reports/%s.json", runID)
}

// UploadReport 归档运行报告，返回对象键
func (c *Client) UploadReport(ctx context.Context, report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	key := ReportKey(report.RunID)
	if err := c.putJSON(ctx, key, data); err != nil {
		return "", err
	}
	return key, nil
}

// DownloadReport 读取运行报告，调用方负责关闭返回的 ReadCloser
func (c *Client) DownloadReport(ctx context.Context, runID string) (io.ReadCloser, error) {
	return c.getObject(ctx, ReportKey(runID))
}
