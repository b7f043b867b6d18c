package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"catalog-sync/internal/shared/sysinstall"
)

// 安装时写入的 systemd 单元名
const (
	apiServerService = "catalog-sync-api-server"
	tickService      = "catalog-sync-tick"
)

// runInstall 安装模式（api-server -install）
//
// 以 root 运行：创建系统用户与目录，安装 api-server service、
// 每分钟触发 tick 的 timer 及其 oneshot service。调度完全由外部
// timer 驱动，进程内不跑定时循环。
func runInstall() error {
	if !sysinstall.IsRoot() {
		return fmt.Errorf("install requires root (try sudo)")
	}
	if !sysinstall.HasSystemd() {
		return fmt.Errorf("systemd not found, install manually")
	}

	if err := sysinstall.EnsureSystemUser(); err != nil {
		return err
	}
	if err := sysinstall.EnsureDirectories(); err != nil {
		return err
	}

	exePath := sysinstall.GetExecutablePath()
	if exePath == "" {
		return fmt.Errorf("cannot resolve executable path")
	}
	envFile := filepath.Join(sysinstall.ConfigDir, "production.env")

	// API Server 主服务
	serviceContent := sysinstall.GenerateServiceFile(
		exePath,
		apiServerService,
		"Catalog Sync API Server",
		envFile,
		"postgresql.service redis.service",
	)
	if err := sysinstall.InstallSystemdService(apiServerService, serviceContent); err != nil {
		return err
	}

	// tick 触发：timer + oneshot service
	tickPort := os.Getenv("API_PORT")
	if tickPort == "" {
		tickPort = "8080"
	}
	tickURL := fmt.Sprintf("http://127.0.0.1:%s/api/v1/scheduler/tick", tickPort)

	tickContent := sysinstall.GenerateTickServiceFile(
		"Catalog Sync scheduler tick",
		tickURL,
		envFile,
	)
	if err := sysinstall.WriteSystemdService(tickService, tickContent); err != nil {
		return err
	}

	timerContent := sysinstall.GenerateTimerFile("Catalog Sync scheduler tick timer")
	if err := sysinstall.InstallSystemdTimer(tickService, timerContent); err != nil {
		return err
	}

	if _, err := os.Stat(envFile); err == nil {
		sysinstall.SetSecureFilePermissions(envFile)
	}

	log.Printf("[install] Done. Next steps:")
	log.Printf("[install]   1. write secrets to %s (TICK_TOKEN, JWT_SECRET, DATABASE_URL, ...)", envFile)
	log.Printf("[install]   2. write %s/production.yaml (APP_ENV=production)", sysinstall.ConfigDir)
	log.Printf("[install]   3. systemctl start %s && systemctl start %s.timer", apiServerService, tickService)
	return nil
}
