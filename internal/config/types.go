// Package config 配置加载
//
// API Server 与 Mock Pipeline 读同一份 YAML schema，各取各的章节。
// 每个配置项按 环境变量 > YAML > 内置默认值 取第一个非空来源，
// 因此 systemd 的 EnvironmentFile、compose 的 --env-file 和本地
// .env 都能在不改 YAML 的情况下覆盖单项配置。
//
// 凭据（密码、令牌、密钥）一律不进 YAML：对应字段的 yaml tag 是
// "-"，只认环境变量。.env 文件是凭据的唯一落盘位置，Go 进程经
// godotenv 读它，compose 与 systemd 直接引用同一个文件。
//
// 配置目录按顺序取 --config 参数、CONFIG_DIR 变量，最后按 APP_ENV
// 落到默认位置：production 用 /etc/catalog-sync/，development 与
// test 用仓库内 ./configs/。目录下的文件名由 APP_ENV 决定，
// 如 development.yaml + .env.development、production.yaml + production.env。
package config

// Environment 运行环境标识，决定默认配置路径与文件名
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test" // 集成测试与 E2E 共用
	EnvDevelopment Environment = "development"
)

// YAMLConfig 配置文件的完整结构
// 两个进程共享同一份文件，各读各的章节
type YAMLConfig struct {
	APIServer APIServerConfig `yaml:"api_server"` // API Server（端口 + URL）
	Database  DatabaseConfig  `yaml:"database"`   // 数据库（Run Store）
	Redis     RedisConfig     `yaml:"redis"`      // Redis（锁 + 事件流）
	Etcd      EtcdConfig      `yaml:"etcd"`       // etcd（备选锁后端）
	MinIO     MinIOConfig     `yaml:"minio"`      // MinIO 对象存储（运行报告归档）
	Scheduler SchedulerConfig `yaml:"scheduler"`  // 调度器（tick 判定阈值）
	Pipeline  PipelineConfig  `yaml:"pipeline"`   // Pipeline 执行器连接
	Notify    NotifyConfig    `yaml:"notify"`     // Webhook 通知
	TLS       TLSConfig       `yaml:"tls"`        // TLS（共享）
	Auth      AuthConfig      `yaml:"auth"`       // 认证（API Server）
}

// AuthConfig 认证配置
// 凭据字段（yaml:"-"）只认环境变量，TTL 这类非敏感项才进 YAML
type AuthConfig struct {
	JWTSecret       string `yaml:"-"`                 // 只从 JWT_SECRET 环境变量读取
	AccessTokenTTL  string `yaml:"access_token_ttl"`  // 例如 "15m"
	RefreshTokenTTL string `yaml:"refresh_token_ttl"` // 例如 "168h"
	AdminEmail      string `yaml:"-"`                 // 只从 ADMIN_EMAIL 环境变量读取
	AdminPassword   string `yaml:"-"`                 // 只从 ADMIN_PASSWORD 环境变量读取
	TickToken       string `yaml:"-"`                 // 只从 TICK_TOKEN 环境变量读取（tick 端点共享密钥）
}

// APIServerConfig 监听端口与对外地址
type APIServerConfig struct {
	Port string `yaml:"port"` // 监听端口
	URL  string `yaml:"url"`  // API Server 完整 URL（内部 ticker 和文档展示用）
}

// TLSConfig HTTPS 开关与证书来源
type TLSConfig struct {
	Enabled      bool       `yaml:"enabled"`
	CertFile     string     `yaml:"cert_file"`     // 服务端证书
	KeyFile      string     `yaml:"key_file"`      // 服务端私钥
	CAFile       string     `yaml:"ca_file"`       // CA 证书（用于验证客户端/服务端）
	CertDir      string     `yaml:"cert_dir"`      // 证书目录（auto_generate 时使用，默认 /etc/catalog-sync/certs）
	AutoGenerate bool       `yaml:"auto_generate"` // 启用时若证书不存在则自动生成自签名证书
	Hosts        string     `yaml:"hosts"`         // 证书 SANs（逗号分隔的 IP/域名，自动包含 localhost）
	ACME         ACMEConfig `yaml:"acme"`          // Let's Encrypt 自动证书（互联网域名）
}

// ACMEConfig Let's Encrypt 自动签发，适用于有公网域名的部署
type ACMEConfig struct {
	Enabled  bool     `yaml:"enabled"`   // 启用 ACME 自动证书
	Domains  []string `yaml:"domains"`   // 域名列表，如 ["sync.example.com"]
	Email    string   `yaml:"email"`     // 联系邮箱（Let's Encrypt 要求）
	CacheDir string   `yaml:"cache_dir"` // 证书缓存目录（默认 /etc/catalog-sync/certs/acme）
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // "postgres", "sqlite", or "mongodb"（默认 sqlite）
	Path     string `yaml:"path"`   // SQLite 文件路径
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"-"` // 只从环境变量读取（DB_PASSWORD / MONGO_ROOT_PASSWORD）
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
	URI      string `yaml:"uri"` // MongoDB 连接 URI（优先于 host/port，如 mongodb://localhost:27017）
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`   // 只从 REDIS_PASSWORD 环境变量读取
	URL      string `yaml:"url"` // 直接指定 URL（优先于 host/port/db）
}

// EtcdConfig etcd 配置（lock_backend=etcd 时使用）
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // 默认 ["localhost:2379"]
	Prefix    string   `yaml:"prefix"`    // 键前缀，默认 /catalog-sync
}

// MinIOConfig 报告归档用的对象存储连接
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"` // 例如 localhost:9000
	AccessKey string `yaml:"-"`        // 只从 MINIO_ROOT_USER 环境变量读取
	SecretKey string `yaml:"-"`        // 只从 MINIO_ROOT_PASSWORD 环境变量读取
	UseSSL    bool   `yaml:"use_ssl"`  // 是否使用 HTTPS
	Bucket    string `yaml:"bucket"`   // 默认 bucket 名称
}

// SchedulerConfig 调度器配置
//
// tick 判定阈值统一用整数秒/分钟表达（与 ScheduleConfig 的
// frequency_minutes 等字段一致），环境变量可覆盖 YAML 值。
type SchedulerConfig struct {
	Timezone             string `yaml:"timezone"`               // daily 调度的本地时区，默认 Europe/Berlin
	ActiveWindowSeconds  int    `yaml:"active_window_seconds"`  // 最近进展视为活跃的窗口，默认 60
	StallWindowSeconds   int    `yaml:"stall_window_seconds"`   // 活跃与停滞之间的观望窗口，默认 180
	IdleTimeoutMinutes   int    `yaml:"idle_timeout_minutes"`   // 无任何进展判定超时，默认 30
	YieldDebounceSeconds int    `yaml:"yield_debounce_seconds"` // run_yielded 去抖，默认 5
	LockBackend          string `yaml:"lock_backend"`           // "redis"（默认）、"etcd" 或 "none"
	InternalTicker       bool   `yaml:"internal_ticker"`        // 进程内 ticker（开发用，生产由 systemd timer 驱动）
	TickIntervalSeconds  int    `yaml:"tick_interval_seconds"`  // 内部 ticker 周期，默认 60
}

// PipelineConfig Pipeline 执行器连接配置
type PipelineConfig struct {
	BaseURL              string `yaml:"base_url"`               // 例如 http://localhost:8081
	Token                string `yaml:"-"`                      // 只从 PIPELINE_TOKEN 环境变量读取
	StartTimeoutSeconds  int    `yaml:"start_timeout_seconds"`  // start 调用超时，默认 10
	ResumeTimeoutSeconds int    `yaml:"resume_timeout_seconds"` // resume 调用超时，默认 10
}

// NotifyConfig Webhook 通知配置
type NotifyConfig struct {
	WebhookURL     string `yaml:"webhook_url"`     // 为空则禁用通知
	TimeoutSeconds int    `yaml:"timeout_seconds"` // 默认 3
}

// Config 解析完成后的运行时配置，进程内只读
type Config struct {
	Env            Environment
	DatabaseDriver string // "postgres", "sqlite", or "mongodb"
	DatabaseURL    string
	DatabaseDBName string // MongoDB 数据库名称
	RedisURL       string
	APIPort        string
	Scheduler      SchedulerConfig
	Pipeline       PipelineConfig
	Notify         NotifyConfig
	TLS            TLSConfig
	Auth           AuthConfig
	MinIO          MinIOConfig     // MinIO 对象存储配置
	APIServer      APIServerConfig // API Server 配置（端口 + URL）
	Etcd           EtcdConfig      // etcd 配置（备选锁后端）
	ConfigFilePath string          // 实际加载的配置文件路径（用于配置管理 API）
}

// yamlConfigInternal YAML 解析结果加上来源路径，loadedFrom 不序列化
type yamlConfigInternal struct {
	YAMLConfig `yaml:",inline"`
	loadedFrom string
}
