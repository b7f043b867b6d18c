// Package sysinstall 生产机安装工具
//
// api-server -install 以 root 运行时构建完整的 systemd 部署：
// 专用系统用户、目录布局、api-server 常驻 service，以及驱动调度的
// 每分钟 tick timer（进程内不跑定时循环，调度完全由外部触发）。
package sysinstall

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strings"
)

const (
	// ServiceUser 系统服务用户名
	ServiceUser = "catalog-sync"
	// ConfigDir 统一配置目录
	ConfigDir = "/etc/catalog-sync"
	// DataDir 数据目录
	DataDir = "/var/lib/catalog-sync"
	// LogDir 日志目录
	LogDir = "/var/log/catalog-sync"
	// CertsSubDir 证书子目录
	CertsSubDir = "certs"
)

// systemdUnitDir unit 文件安装位置
const systemdUnitDir = "/etc/systemd/system"

// EnsureSystemUser 创建专用系统用户，已存在则跳过
func EnsureSystemUser() error {
	if _, err := user.Lookup(ServiceUser); err == nil {
		return nil
	}

	out, err := exec.Command("useradd",
		"--system",
		"--no-create-home",
		"--shell", "/usr/sbin/nologin",
		ServiceUser,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to create system user %s: %v (%s)", ServiceUser, err, strings.TrimSpace(string(out)))
	}

	log.Printf("Created system user: %s", ServiceUser)
	return nil
}

// EnsureDirectories 建出配置/数据/日志目录并交给服务用户
func EnsureDirectories() error {
	dirs := []string{
		ConfigDir,
		filepath.Join(ConfigDir, CertsSubDir),
		DataDir,
		LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if u, err := user.Lookup(ServiceUser); err == nil {
		for _, dir := range dirs {
			chownRecursive(dir, u.Uid, u.Gid)
		}
	}

	return nil
}

// chownRecursive 递归设置目录所有权，个别文件失败不致命
func chownRecursive(path, uid, gid string) {
	exec.Command("chown", "-R", uid+":"+gid, path).Run()
}

// systemctl 执行 systemctl 子命令
func systemctl(args ...string) error {
	if err := exec.Command("systemctl", args...).Run(); err != nil {
		return fmt.Errorf("systemctl %s failed: %w", strings.Join(args, " "), err)
	}
	return nil
}

// writeUnit 写 unit 文件并 daemon-reload
func writeUnit(fileName, content string) (string, error) {
	path := filepath.Join(systemdUnitDir, fileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", fileName, err)
	}
	if err := systemctl("daemon-reload"); err != nil {
		return "", err
	}
	return path, nil
}

// InstallSystemdService 安装并 enable 常驻 service
func InstallSystemdService(serviceName, serviceContent string) error {
	path, err := writeUnit(serviceName+".service", serviceContent)
	if err != nil {
		return err
	}
	if err := systemctl("enable", serviceName); err != nil {
		return err
	}
	log.Printf("Installed systemd service: %s", path)
	return nil
}

// WriteSystemdService 只写入不 enable
// 用于 timer 激活的 unit（没有 [Install] 段，enable 会报错）
func WriteSystemdService(serviceName, serviceContent string) error {
	path, err := writeUnit(serviceName+".service", serviceContent)
	if err != nil {
		return err
	}
	log.Printf("Installed systemd service: %s", path)
	return nil
}

// InstallSystemdTimer 安装并 enable timer
// timerName 与被激活的 service 同名，如 "catalog-sync-tick"
func InstallSystemdTimer(timerName, timerContent string) error {
	path, err := writeUnit(timerName+".timer", timerContent)
	if err != nil {
		return err
	}
	if err := systemctl("enable", timerName+".timer"); err != nil {
		return err
	}
	log.Printf("Installed systemd timer: %s", path)
	return nil
}

// GenerateServiceFile 生成 api-server 常驻 service 的 unit 内容
//
// binaryPath 用 os.Executable() 的真实路径；extraAfter 追加启动顺序
// 依赖（如 "postgresql.service redis.service"）；envFile 为空则不写
// EnvironmentFile 行。
func GenerateServiceFile(binaryPath, serviceName, description, envFile, extraAfter string) string {
	after := "network-online.target"
	if extraAfter != "" {
		after += " " + extraAfter
	}

	envFileLine := ""
	if envFile != "" {
		envFileLine = fmt.Sprintf("EnvironmentFile=-%s\n", envFile)
	}

	readWritePaths := fmt.Sprintf("%s %s %s", ConfigDir, DataDir, LogDir)

	return fmt.Sprintf(`[Unit]
Description=%s
After=%s
Wants=network-online.target

[Service]
Type=simple
User=%s
Group=%s
%sExecStart=%s --config %s
Restart=always
RestartSec=5
StartLimitBurst=5
StartLimitIntervalSec=60

# 安全加固
NoNewPrivileges=true
ProtectSystem=strict
ProtectHome=true
ReadWritePaths=%s /tmp
PrivateTmp=true

# 日志
StandardOutput=journal
StandardError=journal
SyslogIdentifier=%s

[Install]
WantedBy=multi-user.target
`, description, after, ServiceUser, ServiceUser, envFileLine, binaryPath, ConfigDir, readWritePaths, serviceName)
}

// GenerateTickServiceFile 生成 tick 触发 service 的 unit 内容（由 timer 激活）
// tickURL: tick 端点完整地址
// envFile: 环境变量文件路径（提供 TICK_TOKEN）
func GenerateTickServiceFile(description, tickURL, envFile string) string {
	envFileLine := ""
	if envFile != "" {
		envFileLine = fmt.Sprintf("EnvironmentFile=-%s\n", envFile)
	}

	// -m 55：单次 tick 必须在下一分钟到来前返回
	return fmt.Sprintf(`[Unit]
Description=%s
After=network-online.target
Wants=network-online.target

[Service]
Type=oneshot
User=%s
Group=%s
%sExecStart=/usr/bin/curl -fsS -m 55 -X POST -H "X-Tick-Token: ${TICK_TOKEN}" %s

StandardOutput=journal
StandardError=journal
SyslogIdentifier=catalog-sync-tick
`, description, ServiceUser, ServiceUser, envFileLine, tickURL)
}

// GenerateTimerFile 生成每分钟触发的 systemd timer 文件内容
//
// Persistent=false：停机期间错过的 tick 不补跑，每次 tick 都基于
// 当前存储状态重新决策。
func GenerateTimerFile(description string) string {
	return fmt.Sprintf(`[Unit]
Description=%s

[Timer]
OnCalendar=*-*-* *:*:00
AccuracySec=1s
Persistent=false

[Install]
WantedBy=timers.target
`, description)
}

// GetExecutablePath 获取当前二进制的真实路径（解析符号链接）
func GetExecutablePath() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	real, err := filepath.EvalSymlinks(exe)
	if err != nil {
		return exe
	}
	return real
}

// IsRoot 检测是否以 root 运行
func IsRoot() bool {
	return os.Getuid() == 0
}

// IsUnderSystemd 检测是否在 systemd 下运行
func IsUnderSystemd() bool {
	if os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	return os.Getppid() == 1
}

// HasSystemd 检测系统是否有 systemd
func HasSystemd() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

// SetSecureFilePermissions 敏感文件收紧为 root:catalog-sync 0640
func SetSecureFilePermissions(path string) {
	os.Chmod(path, 0640)
	if u, err := user.Lookup(ServiceUser); err == nil {
		exec.Command("chown", "root:"+u.Gid, path).Run()
	}
}
