// Package logging 结构化访问日志
//
// 域内事件走标准库 log 的方括号标签风格，本包只承担按请求的
// 结构化输出（slog），供运维侧采集与检索。
package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger 结构化日志器，附带 component 标识
type Logger struct {
	*slog.Logger
	component string
}

// Config 日志配置
type Config struct {
	Level     string `json:"level"`
	Format    string `json:"format"` // json 或 text
	Output    string `json:"output"` // stdout / stderr / 文件路径
	Component string `json:"component"`
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openOutput 打开日志输出目标，文件打不开时退回 stdout
func openOutput(target string) io.Writer {
	switch target {
	case "stdout", "":
		return os.Stdout
	case "stderr":
		return os.Stderr
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return os.Stdout
	}
	return f
}

// New 创建日志器，component 作为固定属性写进每条日志
func New(cfg Config) *Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	out := openOutput(cfg.Output)
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	base := slog.New(handler)
	if cfg.Component != "" {
		base = base.With(slog.String("component", cfg.Component))
	}
	return &Logger{Logger: base, component: cfg.Component}
}

// Default 按环境变量构建日志器
// LOG_LEVEL / LOG_FORMAT / LOG_OUTPUT 未设置时输出 text 到 stdout
func Default(component string) *Logger {
	return New(Config{
		Level:     os.Getenv("LOG_LEVEL"),
		Format:    os.Getenv("LOG_FORMAT"),
		Output:    os.Getenv("LOG_OUTPUT"),
		Component: component,
	})
}

// HTTPRequestLog 记一条访问日志
func (l *Logger) HTTPRequestLog(method, path string, status int, duration time.Duration, clientIP string) {
	l.Info("HTTP request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
		slog.String("client_ip", clientIP),
	)
}
