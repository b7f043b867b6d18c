// Package main API Server 入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-sync/internal/apiserver/auth"
	"catalog-sync/internal/apiserver/orchestrator"
	"catalog-sync/internal/apiserver/server"
	"catalog-sync/internal/config"
	"catalog-sync/internal/notify"
	"catalog-sync/internal/pipeline"
	"catalog-sync/internal/shared/infra"
	"catalog-sync/internal/shared/lock"
	locketcd "catalog-sync/internal/shared/lock/etcd"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/objstore"
	"catalog-sync/internal/shared/storage"
	"catalog-sync/internal/shared/storage/dbutil"
	"catalog-sync/internal/shared/storage/factory"
	"catalog-sync/pkg/logging"
)

func main() {
	configDirFlag := flag.String("config", "", "配置文件目录")
	installFlag := flag.Bool("install", false, "安装 systemd service 与 tick timer 后退出")
	initDBFlag := flag.Bool("init-db", false, "执行 PostgreSQL 建表脚本后退出")
	flag.Parse()

	if *configDirFlag != "" {
		config.SetConfigDir(*configDirFlag)
	}
	if *installFlag {
		if err := runInstall(); err != nil {
			log.Fatalf("[install] Failed: %v", err)
		}
		return
	}
	if *initDBFlag {
		if err := runInitDB(); err != nil {
			log.Fatalf("[init-db] Failed: %v", err)
		}
		return
	}

	// 加载配置（自动加载 .env，APP_ENV 切换 development/test/production）
	cfg := config.Load()

	log.Printf("Starting API Server... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 持久化存储：Run、事件、排程配置、用户
	store, err := factory.NewStoreFromDSN(dbutil.DriverType(cfg.DatabaseDriver), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.DatabaseDriver, err)
	}
	defer store.Close()
	log.Printf("Connected to %s", cfg.DatabaseDriver)

	// 协调层：Run 锁 + 事件总线。Redis 不可用时降级为 NoOp：
	// 调度正确性由存储层条件写保证，只失去实时推送与遗留锁回收
	coord := buildCoordination(cfg.RedisURL)
	defer coord.Close()

	// 首次部署种子：默认排程配置（停用状态）与管理员账号
	ensureScheduleConfig(store)
	if err := auth.EnsureAdminUser(store, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Printf("[auth] WARNING: admin user seed failed: %v", err)
	}

	// Pipeline 执行器客户端
	executor := pipeline.NewClient(pipeline.Config{
		BaseURL:       cfg.Pipeline.BaseURL,
		Token:         cfg.Pipeline.Token,
		StartTimeout:  cfg.Pipeline.StartTimeout(),
		ResumeTimeout: cfg.Pipeline.ResumeTimeout(),
	})

	// MinIO 报告归档（endpoint 未配置时不归档）
	reports := buildReportArchive(cfg.MinIO)

	// Webhook 通知（未配置 webhook_url 时由调度器退化为 NoOp）
	var notifier notify.Notifier
	if cfg.Notify.Enabled() {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout())
		log.Printf("[notify] Webhook notifications enabled")
	}

	location, err := cfg.Scheduler.Location()
	if err != nil {
		log.Printf("[scheduler] WARNING: invalid timezone %q, falling back to UTC: %v",
			cfg.Scheduler.Timezone, err)
		location = time.UTC
	}

	// 归档客户端为空指针时必须传 nil 接口，否则调度器的 nil 判断失效
	var archiver orchestrator.ReportArchiver
	if reports != nil {
		archiver = reports
	}

	locks, closeLocks := buildLocks(cfg, coord)
	defer closeLocks()

	orch := orchestrator.New(orchestrator.Config{
		Store:    store,
		Executor: executor,
		Locks:    locks,
		Notifier: notifier,
		Archiver: archiver,
		Bus:      coord,
		Thresholds: orchestrator.Thresholds{
			ActiveWindow:  cfg.Scheduler.ActiveWindow(),
			StallWindow:   cfg.Scheduler.StallWindow(),
			IdleTimeout:   cfg.Scheduler.IdleTimeout(),
			YieldDebounce: cfg.Scheduler.YieldDebounce(),
		},
		Location: location,
	})

	authCfg := auth.Config{
		JWTSecret:       cfg.Auth.JWTSecret,
		AccessTokenTTL:  cfg.Auth.AccessTTL(),
		RefreshTokenTTL: cfg.Auth.RefreshTTL(),
	}
	if !authCfg.Enabled() {
		log.Println("[auth] WARNING: JWT_SECRET not set, API authentication disabled")
	}
	if cfg.Auth.TickToken == "" {
		log.Println("[scheduler] WARNING: TICK_TOKEN not set, tick endpoint rejects all requests")
	}

	tick := orchestrator.NewHandler(orch, cfg.Auth.TickToken)
	h := server.NewHandler(store, executor, tick)
	h.SetRunEventBus(coord)
	h.SetAuthConfig(authCfg)
	h.SetAccessLogger(logging.Default("api-server"))
	if reports != nil {
		h.SetReportArchive(reports)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 进程内 ticker 仅用于开发与单机部署，生产由 systemd timer 调用 tick 端点
	if cfg.Scheduler.InternalTicker {
		go h.StartInternalTicker(ctx, cfg.Scheduler.TickInterval())
	}

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		cancel()
	}()

	if err := serve(srv, cfg); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// buildCoordination 初始化 Redis 协调层，连接失败时降级为 NoOp
func buildCoordination(redisURL string) infra.Coordination {
	coord, err := infra.NewRedisInfra(redisURL)
	if err != nil {
		log.Printf("[redis] WARNING: %v, coordination degraded to no-op", err)
		return infra.NewNoOpCoordination()
	}
	log.Println("Connected to Redis")
	return coord
}

// buildLocks 选择 Run 锁后端，附带清理函数
//
// 默认复用 Redis 协调层（连接由 coord 统一关闭）；lock_backend=etcd
// 时单独连接 etcd，清理函数负责断开；none 或后端不可用时退化为
// NoOp（调度器自己从不持锁，只回收）。
func buildLocks(cfg *config.Config, coord infra.Coordination) (lock.Manager, func()) {
	noop := func() {}

	switch cfg.Scheduler.LockBackend {
	case "etcd":
		store, err := locketcd.NewStore(locketcd.Config{
			Endpoints: cfg.Etcd.Endpoints,
			Prefix:    cfg.Etcd.Prefix,
		})
		if err != nil {
			log.Printf("[lock] WARNING: etcd unavailable, falling back to no-op lock: %v", err)
			return lock.NewNoOpLock(), noop
		}
		return store, func() { store.Close() }
	case "none":
		return lock.NewNoOpLock(), noop
	default:
		return coord, noop
	}
}

// buildReportArchive 初始化 MinIO 报告归档，endpoint 未配置或不可达时返回 nil
func buildReportArchive(minioCfg config.MinIOConfig) *objstore.Client {
	if minioCfg.Endpoint == "" {
		return nil
	}

	client, err := objstore.NewClient(minioCfg)
	if err != nil {
		log.Printf("[minio] WARNING: report archive disabled: %v", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.EnsureBucket(ctx); err != nil {
		log.Printf("[minio] WARNING: ensure bucket failed: %v", err)
	}
	log.Printf("[minio] Report archive enabled (bucket=%s)", minioCfg.Bucket)
	return client
}

// ensureScheduleConfig 首次部署时写入默认排程配置（enabled=false，需操作员显式开启）
func ensureScheduleConfig(store storage.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := store.GetScheduleConfig(ctx); err == nil {
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		log.Printf("[schedule] WARNING: cannot read schedule config: %v", err)
		return
	}

	if err := store.PutScheduleConfig(ctx, model.DefaultScheduleConfig()); err != nil {
		log.Printf("[schedule] WARNING: cannot seed default schedule config: %v", err)
		return
	}
	log.Println("[schedule] Seeded default schedule config (disabled)")
}
