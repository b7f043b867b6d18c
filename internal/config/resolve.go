package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// configDir 来自 --config 参数，设置后压过其余所有来源
var configDir string

// SetConfigDir 指定配置目录，供 main 在解析命令行后调用
func SetConfigDir(dir string) {
	configDir = dir
}

// effectiveConfigPaths 返回配置文件的搜索目录列表
//
// --config 或 CONFIG_DIR 给出的目录独占搜索；都没有时生产环境
// 固定在 /etc/catalog-sync，开发与测试在仓库的 configs/ 下找
// （兼容从子目录运行测试的 ../configs）。
func effectiveConfigPaths() []string {
	if configDir != "" {
		return []string{configDir}
	}
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return []string{dir}
	}
	if parseEnv(getEnv("APP_ENV", "development")) == EnvProduction {
		return []string{"/etc/catalog-sync"}
	}
	return []string{"configs", "../configs"}
}

// loadEnvFiles 把 .env.{env} 注入进程环境
//
// 只在 development/test 下生效，生产凭据由 systemd EnvironmentFile
// 注入、不落在仓库里。godotenv.Load 不覆盖已存在的变量，shell 里
// 手动 export 的值仍然优先。
func loadEnvFiles(env Environment) {
	if env == EnvProduction {
		return
	}

	name := fmt.Sprintf(".env.%s", env)
	// 当前目录找不到时向上一级找一次，测试二进制常在包目录下运行
	for _, dir := range []string{".", ".."} {
		if err := godotenv.Load(filepath.Join(dir, name)); err == nil {
			return
		}
	}
}
