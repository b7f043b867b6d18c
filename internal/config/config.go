package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load 加载配置
//  1. 加载 .env.{env}（敏感信息，仅 development/test）
//  2. 根据 APP_ENV 加载 {env}.yaml
//  3. 环境变量覆盖敏感字段与调度阈值
func Load() *Config {
	// .env 文件本身可能设置 APP_ENV，因此加载后重新解析一次
	env := parseEnv(getEnv("APP_ENV", "development"))
	loadEnvFiles(env)
	env = parseEnv(getEnv("APP_ENV", string(env)))

	yamlCfg := loadYAMLConfig(env)

	// 敏感信息只从环境变量读取（YAML 中不存储任何密码）
	dbPassword := firstEnv("DB_PASSWORD", "MONGO_ROOT_PASSWORD")
	yamlCfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	yamlCfg.MinIO.AccessKey = os.Getenv("MINIO_ROOT_USER")
	yamlCfg.MinIO.SecretKey = os.Getenv("MINIO_ROOT_PASSWORD")
	yamlCfg.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	yamlCfg.Auth.AdminEmail = os.Getenv("ADMIN_EMAIL")
	yamlCfg.Auth.AdminPassword = os.Getenv("ADMIN_PASSWORD")
	yamlCfg.Auth.TickToken = os.Getenv("TICK_TOKEN")
	yamlCfg.Pipeline.Token = os.Getenv("PIPELINE_TOKEN")

	// DATABASE_URL 整体覆盖 YAML 拼装结果
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(yamlCfg.Database, dbPassword)
	}
	driver := detectDatabaseDriver(yamlCfg.Database.Driver, databaseURL)

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = buildRedisURL(yamlCfg.Redis)
	}

	applySchedulerEnv(&yamlCfg.Scheduler)

	cfg := &Config{
		Env:            env,
		DatabaseDriver: driver,
		DatabaseURL:    databaseURL,
		DatabaseDBName: yamlCfg.Database.Name,
		RedisURL:       redisURL,
		APIPort:        yamlCfg.APIServer.Port,
		Scheduler:      yamlCfg.Scheduler,
		Pipeline:       yamlCfg.Pipeline,
		Notify:         yamlCfg.Notify,
		TLS:            yamlCfg.TLS,
		Auth:           yamlCfg.Auth,
		MinIO:          yamlCfg.MinIO,
		APIServer:      yamlCfg.APIServer,
		Etcd:           yamlCfg.Etcd,
		ConfigFilePath: yamlCfg.loadedFrom,
	}

	cfg.Scheduler.validate()
	cfg.Pipeline.validate()
	cfg.Notify.validate()

	return cfg
}

// applySchedulerEnv 环境变量覆盖调度阈值（运维调参免改 YAML）
func applySchedulerEnv(s *SchedulerConfig) {
	if v := os.Getenv("SCHEDULER_TIMEZONE"); v != "" {
		s.Timezone = v
	}
	if v := os.Getenv("SCHEDULER_LOCK_BACKEND"); v != "" {
		s.LockBackend = v
	}
	s.ActiveWindowSeconds = envInt("SCHEDULER_ACTIVE_WINDOW_SECONDS", s.ActiveWindowSeconds)
	s.StallWindowSeconds = envInt("SCHEDULER_STALL_WINDOW_SECONDS", s.StallWindowSeconds)
	s.IdleTimeoutMinutes = envInt("SCHEDULER_IDLE_TIMEOUT_MINUTES", s.IdleTimeoutMinutes)
	s.YieldDebounceSeconds = envInt("SCHEDULER_YIELD_DEBOUNCE_SECONDS", s.YieldDebounceSeconds)
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *yamlConfigInternal {
	cfg := &yamlConfigInternal{YAMLConfig: defaultYAMLConfig()}

	paths := effectiveConfigPaths()

	// common.yaml（公共配置，可选）
	for _, base := range paths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
				log.Printf("[config] Failed to parse %s: %v", path, err)
			}
			break
		}
	}

	// {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range paths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg.YAMLConfig); err != nil {
				log.Printf("[config] Failed to parse %s: %v", path, err)
			} else {
				cfg.loadedFrom = path
			}
			break
		}
	}

	return cfg
}

// defaultYAMLConfig 硬编码默认值（最低优先级）
func defaultYAMLConfig() YAMLConfig {
	return YAMLConfig{
		APIServer: APIServerConfig{Port: "8080", URL: "http://localhost:8080"},
		Database:  DatabaseConfig{Host: "localhost", Port: 5432, User: "catalog", Name: "catalog_sync", SSLMode: "disable"},
		Redis:     RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Etcd:      EtcdConfig{Endpoints: []string{"localhost:2379"}, Prefix: "/catalog-sync"},
		MinIO:     MinIOConfig{Bucket: "catalog-sync"},
		Scheduler: SchedulerConfig{
			Timezone:             "Europe/Berlin",
			ActiveWindowSeconds:  60,
			StallWindowSeconds:   180,
			IdleTimeoutMinutes:   30,
			YieldDebounceSeconds: 5,
			LockBackend:          "redis",
			TickIntervalSeconds:  60,
		},
		Pipeline: PipelineConfig{
			BaseURL:              "http://localhost:8081",
			StartTimeoutSeconds:  10,
			ResumeTimeoutSeconds: 10,
		},
		Notify: NotifyConfig{TimeoutSeconds: 3},
		Auth:   AuthConfig{AccessTokenTTL: "15m", RefreshTokenTTL: "168h"},
	}
}
