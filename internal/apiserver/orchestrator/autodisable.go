package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"catalog-sync/internal/notify"
	"catalog-sync/internal/shared/model"
)

// failureChainScanLimit 失败链回溯的最大条数（max_attempts 上限是 5，足够了）
const failureChainScanLimit = 20

// transientSignatures 瞬态失败的错误消息签名（全小写匹配）
//
// 命中任意一条的失败不计入连续失败链。裸状态码按子串匹配，
// 对应执行器把上游 HTTP 错误原样写进 error_message 的情况。
var transientSignatures = []string{
	"resource limit",
	"worker limit",
	"out of memory",
	"too many requests",
	"connection reset",
	"connection refused",
	"connection timed out",
	"i/o timeout",
	"temporarily unavailable",
	"429",
	"502",
	"503",
	"cancelled by user",
	"canceled by user",
}

// ============================================================================
// 失败链分析与自动停用
// ============================================================================

// checkAutoDisable 连续永久失败达到上限时自动停用排程
//
// 只回溯 config.updated_at 之后启动的主执行（scheduled 且 attempt=1），
// 新到旧逐个归类：
//   - 成功（含带警告）：链条终止，不停用
//   - 取消：跳过，不计数也不终止链条
//   - 瞬态失败（超时、已知签名）：同上跳过
//   - 永久失败：计数
//
// 操作员重新启用排程会刷新 updated_at，链条随之清零。
// 返回 nil 表示未触发停用，继续到期判定。
func (o *Orchestrator) checkAutoDisable(ctx context.Context, cfg *model.ScheduleConfig, now time.Time) *TickResult {
	primaries, err := o.store.ListPrimaryRunsSince(ctx, cfg.UpdatedAt, failureChainScanLimit)
	if err != nil {
		return o.tickError(ctx, now, "", fmt.Errorf("list primary runs: %w", err))
	}

	var chain []*model.Run
	for _, run := range primaries {
		if !run.IsTerminal() {
			continue
		}
		if run.IsSuccess() {
			break
		}
		if run.Status == model.RunStatusCancelled {
			continue
		}
		if isTransientFailure(run) {
			continue
		}
		chain = append(chain, run)
	}

	if len(chain) < cfg.MaxAttempts {
		return nil
	}

	anchor := chain[0]
	reason := fmt.Sprintf("disabled after %d consecutive permanent failures (last run %s)", len(chain), anchor.ID)
	if err := o.store.DisableSchedule(ctx, reason); err != nil {
		return o.tickError(ctx, now, anchor.ID, fmt.Errorf("disable schedule: %w", err))
	}

	o.recordEvent(ctx, now, anchor.ID, model.EventLevelError, model.EventScheduleDisabled,
		map[string]any{
			"failure_count": len(chain),
			"max_attempts":  cfg.MaxAttempts,
			"reason":        reason,
		})
	o.notifier.NotifyRunFinished(ctx, notify.NewPayload(anchor))
	log.Printf("[scheduler.autodisable] failures=%d max_attempts=%d anchor=%s", len(chain), cfg.MaxAttempts, anchor.ID)
	return &TickResult{Status: StatusMaxAttemptsExceeded, RunID: anchor.ID, Message: reason}
}

// isTransientFailure 判断一次终态失败是否属于瞬态
//
// 超时一律算瞬态：停滞收割反映的是负载或网络状况，不是数据问题。
func isTransientFailure(run *model.Run) bool {
	if run.Status == model.RunStatusTimeout {
		return true
	}
	if run.ErrorMessage == nil {
		return false
	}
	message := strings.ToLower(*run.ErrorMessage)
	for _, signature := range transientSignatures {
		if strings.Contains(message, signature) {
			return true
		}
	}
	return false
}
