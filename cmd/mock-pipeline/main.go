// Package main Mock Pipeline - 脚本化的流水线执行器
//
// 与 API Server 共享数据库和 Redis，完整实现执行器侧协议：
//
//	POST /api/v1/pipeline/start   创建 Run 并开始逐步推进
//	POST /api/v1/pipeline/resume  停滞后由调度器唤醒继续推进
//
// 步骤推进是模拟的，可注入失败、警告、让出与停滞，
// 用于联调调度器的到期、监督、重试与自动停用路径。
package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"catalog-sync/internal/config"
	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/infra"
	"catalog-sync/internal/shared/lock"
	"catalog-sync/internal/shared/storage/dbutil"
	"catalog-sync/internal/shared/storage/factory"
)

func main() {
	var (
		port       = flag.String("port", "8081", "监听端口")
		stepDelay  = flag.Duration("step-delay", 3*time.Second, "每个步骤的模拟耗时")
		failStep   = flag.String("fail-step", "", "让指定步骤失败（如 price）")
		warnStep   = flag.String("warn-step", "", "让指定步骤产生警告（如 map_identifiers）")
		yieldAfter = flag.String("yield-after", "", "指定步骤完成后让出，等调度器 resume")
		stallAfter = flag.String("stall-after", "", "指定步骤完成后静默，模拟执行器卡死")
	)
	flag.Parse()

	cfg := config.Load()
	log.Printf("Starting Mock Pipeline... [env=%s]", cfg.Env)

	store, err := factory.NewStoreFromDSN(dbutil.DriverType(cfg.DatabaseDriver), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.DatabaseDriver, err)
	}
	defer store.Close()
	log.Printf("Connected to %s", cfg.DatabaseDriver)

	// Redis 不可达时照常工作：失去实时推送，锁退化为 NoOp
	var (
		bus   eventbus.RunEventBus
		locks lock.Manager = lock.NewNoOpLock()
	)
	if coord, err := infra.NewRedisInfra(cfg.RedisURL); err != nil {
		log.Printf("[redis] WARNING: %v, realtime push and run locks disabled", err)
	} else {
		defer coord.Close()
		bus = coord
		locks = coord
	}

	r := &runner{
		store:      store,
		bus:        bus,
		locks:      locks,
		token:      cfg.Pipeline.Token,
		stepDelay:  *stepDelay,
		failStep:   *failStep,
		warnStep:   *warnStep,
		yieldAfter: *yieldAfter,
		stallAfter: *stallAfter,
		active:     make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/pipeline/start", r.handleStart)
	mux.HandleFunc("POST /api/v1/pipeline/resume", r.handleResume)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	log.Printf("Mock Pipeline listening on :%s", *port)
	if err := http.ListenAndServe(":"+*port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
