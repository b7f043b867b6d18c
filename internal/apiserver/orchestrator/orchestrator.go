// Package orchestrator 调度器核心实现
//
// 调度器由外部定时器（systemd timer、cron 等）约每分钟经 HTTP 触发一次。
// 每次 tick 是一次无状态的短调用：读取存储层的当前状态，做出唯一决策
// （跳过 / resume / 标记超时 / 安排重试 / 启动新执行 / 自动停用），
// 把决策写成事件，然后返回。tick 之间不保留任何内存状态。
//
// 并发安全不依赖进程内互斥：终态迁移全部走条件写（UpdateRunIfRunning），
// 每个 tick 至多发起一次 resume，外部定时器重复触发（double-tick）时
// 最多多写几条跳过事件，不会重复驱动同一个 Run。
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"catalog-sync/internal/notify"
	"catalog-sync/internal/pipeline"
	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/lock"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/objstore"
	"catalog-sync/internal/shared/storage"
)

// Store 调度器需要的存储能力集合
type Store interface {
	storage.RunStore
	storage.EventStore
	storage.ScheduleStore
}

// ReportArchiver 终态报告归档的最小接口（MinIO 实现见 objstore 包）
type ReportArchiver interface {
	UploadReport(ctx context.Context, report *objstore.Report) (string, error)
}

// Orchestrator 目录同步调度器
//
// 依赖项全部通过 Config 注入：
//   - store: Run / 事件 / 排程配置的持久化（tick 之间的唯一共享状态）
//   - executor: 流水线执行器客户端（start / resume 两个控制调用）
//   - locks: 命名 Run 锁，仅在强制超时时回收
//   - notifier: 终态通知（尽力而为）
//   - archiver: 终态报告归档（可选）
//   - bus: 事件实时推送（可选）
type Orchestrator struct {
	store      Store
	executor   pipeline.Executor
	locks      lock.Manager
	notifier   notify.Notifier
	archiver   ReportArchiver
	bus        eventbus.RunEventBus
	thresholds Thresholds
	location   *time.Location
}

// Config 调度器依赖项与阈值
type Config struct {
	Store      Store
	Executor   pipeline.Executor
	Locks      lock.Manager         // nil 时退化为 NoOpLock
	Notifier   notify.Notifier      // nil 时退化为 NoOpNotifier
	Archiver   ReportArchiver       // 可为 nil：不归档报告
	Bus        eventbus.RunEventBus // 可为 nil：不做实时推送
	Thresholds Thresholds           // 零值字段取默认阈值
	Location   *time.Location       // daily 排程的民用时区，nil 时为 UTC
}

// New 创建调度器实例
func New(cfg Config) *Orchestrator {
	if cfg.Locks == nil {
		cfg.Locks = lock.NewNoOpLock()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewNoOpNotifier()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cfg.Thresholds.validate()

	return &Orchestrator{
		store:      cfg.Store,
		executor:   cfg.Executor,
		locks:      cfg.Locks,
		notifier:   cfg.Notifier,
		archiver:   cfg.Archiver,
		bus:        cfg.Bus,
		thresholds: cfg.Thresholds,
		location:   cfg.Location,
	}
}

// Tick 执行一次调度决策
//
// now 是本次 tick 的基准时刻，由入口处取一次并贯穿整个调用链，
// 决策过程中不再读进程时钟。判定优先级：
//
//	活跃 Run 监督 > 停用闸门 > 重试判定 > 自动停用判定 > 到期判定
func (o *Orchestrator) Tick(ctx context.Context, now time.Time) *TickResult {
	cfg, err := o.store.GetScheduleConfig(ctx)
	if err != nil {
		return o.tickError(ctx, now, "", fmt.Errorf("load schedule config: %w", err))
	}

	running, err := o.store.ListRunningRuns(ctx)
	if err != nil {
		return o.tickError(ctx, now, "", fmt.Errorf("list running runs: %w", err))
	}

	if active := o.selectActiveRun(ctx, running, now); active != nil {
		return o.superviseRun(ctx, cfg, active, now)
	}

	// 停用状态下重试也不再安排：操作员停掉排程就是要它彻底安静
	if !cfg.Enabled {
		return &TickResult{Status: StatusSkipped, Reason: ReasonDisabled}
	}

	if result := o.checkRetry(ctx, cfg, now); result != nil {
		return result
	}
	if result := o.checkAutoDisable(ctx, cfg, now); result != nil {
		return result
	}
	return o.checkDue(ctx, cfg, now)
}

// tickError 记录 tick 内部错误，不改变任何 Run 状态
//
// 有关联 Run 时在其事件流里留一条 ERROR，方便事后溯源；
// 下一个 tick 会从存储层的当前状态重新判定。
func (o *Orchestrator) tickError(ctx context.Context, now time.Time, runID string, err error) *TickResult {
	log.Printf("[scheduler.tick.error] run_id=%s error=%v", runID, err)
	if runID != "" {
		o.recordEvent(ctx, now, runID, model.EventLevelError, model.EventTickError,
			map[string]any{"error": err.Error()})
	}
	return &TickResult{Status: StatusError, RunID: runID, Message: err.Error()}
}

// releaseRunLock 回收 Run 锁，失败只记日志（锁会随 TTL 自行过期）
func (o *Orchestrator) releaseRunLock(ctx context.Context, runID string) {
	if err := o.locks.Release(ctx, lock.RunLockName(runID)); err != nil {
		log.Printf("[scheduler.lock.release.failed] run_id=%s error=%v", runID, err)
	}
}

// isNotFound 判断是否为存储层未命中
func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
