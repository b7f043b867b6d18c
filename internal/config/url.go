package config

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// buildDatabaseURL 根据驱动类型构建数据库连接字符串
func buildDatabaseURL(db DatabaseConfig, password string) string {
	switch strings.ToLower(db.Driver) {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			db.User, password, db.Host, db.Port, db.Name, db.SSLMode)
	case "mongodb":
		if db.URI != "" {
			return db.URI
		}
		if db.User != "" && password != "" {
			return fmt.Sprintf("mongodb://%s:%s@%s:%d", db.User, password, db.Host, db.Port)
		}
		return fmt.Sprintf("mongodb://%s:%d", db.Host, db.Port)
	default: // sqlite
		dbPath := db.Path
		if dbPath == "" {
			dbPath = "/var/lib/catalog-sync/catalog-sync.db"
		}
		return fmt.Sprintf("file:%s?cache=shared&mode=rwc", dbPath)
	}
}

// detectDatabaseDriver 检测数据库驱动类型
// 优先级：YAML driver 字段 > DATABASE_URL 前缀自动检测 > 默认 sqlite
func detectDatabaseDriver(yamlDriver, databaseURL string) string {
	// 1. YAML 显式指定
	if d := strings.ToLower(yamlDriver); d == "sqlite" || d == "postgres" || d == "mongodb" {
		return d
	}
	// 2. 从 DATABASE_URL 前缀自动检测
	if strings.HasPrefix(databaseURL, "file:") || strings.HasPrefix(databaseURL, "sqlite:") {
		return "sqlite"
	}
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return "postgres"
	}
	if strings.HasPrefix(databaseURL, "mongodb://") || strings.HasPrefix(databaseURL, "mongodb+srv://") {
		return "mongodb"
	}
	// 3. 默认 sqlite
	return "sqlite"
}

// buildRedisURL 构建 Redis 连接字符串
// 如果 URL 字段非空，直接使用；否则从 host/port/db/password 构建
func buildRedisURL(redis RedisConfig) string {
	if redis.URL != "" {
		return redis.URL
	}
	if redis.Password != "" {
		return fmt.Sprintf("redis://:%s@%s:%d/%d", redis.Password, redis.Host, redis.Port, redis.DB)
	}
	return fmt.Sprintf("redis://%s:%d/%d", redis.Host, redis.Port, redis.DB)
}

// maskPassword 隐藏密码
func maskPassword(url string) string {
	re := regexp.MustCompile(`(://[^:]+:)([^@]+)(@)`)
	return re.ReplaceAllString(url, "${1}***${3}")
}

// parseEnv 解析环境字符串
func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

// firstEnv 返回第一个非空的环境变量值（用于兼容多种 Docker Compose 变量名）
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// getEnv 获取环境变量，支持默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envInt 获取正整数环境变量，无效值保留默认
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[config] Invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要（隐藏密码）
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, Driver: %s, DB: %s, Redis: %s, Lock: %s}",
		c.Env, c.DatabaseDriver, maskPassword(c.DatabaseURL), c.RedisURL, c.Scheduler.LockBackend)
}

// validate 验证并填充调度器默认值
func (s *SchedulerConfig) validate() {
	if s.Timezone == "" {
		s.Timezone = "Europe/Berlin"
	}
	if s.ActiveWindowSeconds <= 0 {
		s.ActiveWindowSeconds = 60
	}
	if s.StallWindowSeconds <= 0 {
		s.StallWindowSeconds = 180
	}
	if s.IdleTimeoutMinutes <= 0 {
		s.IdleTimeoutMinutes = 30
	}
	if s.YieldDebounceSeconds <= 0 {
		s.YieldDebounceSeconds = 5
	}
	if s.LockBackend == "" {
		s.LockBackend = "redis"
	}
	if s.TickIntervalSeconds <= 0 {
		s.TickIntervalSeconds = 60
	}
}

// ActiveWindow 最近进展视为活跃的窗口
func (s *SchedulerConfig) ActiveWindow() time.Duration {
	return time.Duration(s.ActiveWindowSeconds) * time.Second
}

// StallWindow 活跃与停滞之间的观望窗口
func (s *SchedulerConfig) StallWindow() time.Duration {
	return time.Duration(s.StallWindowSeconds) * time.Second
}

// IdleTimeout 无任何进展判定超时的阈值
func (s *SchedulerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMinutes) * time.Minute
}

// YieldDebounce run_yielded 去抖窗口
func (s *SchedulerConfig) YieldDebounce() time.Duration {
	return time.Duration(s.YieldDebounceSeconds) * time.Second
}

// TickInterval 内部 ticker 周期
func (s *SchedulerConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalSeconds) * time.Second
}

// Location 解析 daily 调度所用的本地时区
func (s *SchedulerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// validate 验证并填充 Pipeline 连接默认值
func (p *PipelineConfig) validate() {
	if p.BaseURL == "" {
		p.BaseURL = "http://localhost:8081"
	}
	if p.StartTimeoutSeconds <= 0 {
		p.StartTimeoutSeconds = 10
	}
	if p.ResumeTimeoutSeconds <= 0 {
		p.ResumeTimeoutSeconds = 10
	}
}

// StartTimeout start 调用超时
func (p *PipelineConfig) StartTimeout() time.Duration {
	return time.Duration(p.StartTimeoutSeconds) * time.Second
}

// ResumeTimeout resume 调用超时
func (p *PipelineConfig) ResumeTimeout() time.Duration {
	return time.Duration(p.ResumeTimeoutSeconds) * time.Second
}

// validate 验证并填充通知默认值
func (n *NotifyConfig) validate() {
	if n.TimeoutSeconds <= 0 {
		n.TimeoutSeconds = 3
	}
}

// Timeout webhook 调用超时
func (n *NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// Enabled 是否启用通知
func (n *NotifyConfig) Enabled() bool {
	return n.WebhookURL != ""
}

// AccessTTL 访问令牌有效期，无法解析时退回 15 分钟
func (a *AuthConfig) AccessTTL() time.Duration {
	d, err := time.ParseDuration(a.AccessTokenTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL 刷新令牌有效期，无法解析时退回 168 小时
func (a *AuthConfig) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(a.RefreshTokenTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}
