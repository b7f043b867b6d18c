package main

import (
	"fmt"
	"log"

	"catalog-sync/deployments"
	"catalog-sync/internal/config"
	pgdriver "catalog-sync/internal/shared/storage/driver/postgres"
)

// runInitDB 初始化数据库 Schema 后退出（api-server -init-db）
//
// 仅 PostgreSQL 需要：执行内嵌的 deployments/init-db.sql 全量建表脚本。
// 脚本幂等，重复执行无副作用。
func runInitDB() error {
	cfg := config.Load()

	switch cfg.DatabaseDriver {
	case "postgres":
		// 继续执行下方初始化
	case "sqlite":
		log.Println("[init-db] SQLite database is auto-initialized on first start, nothing to do")
		return nil
	case "mongodb":
		log.Println("[init-db] MongoDB creates collections on demand, nothing to do")
		return nil
	default:
		return fmt.Errorf("unsupported database driver: %s", cfg.DatabaseDriver)
	}

	db, err := pgdriver.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer db.Close()

	if _, err := db.Exec(deployments.InitDBSQL); err != nil {
		return fmt.Errorf("apply init-db.sql: %w", err)
	}

	log.Println("[init-db] Database initialized successfully with init-db.sql")
	return nil
}
