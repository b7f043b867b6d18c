// Package postgres PostgreSQL 驱动与方言
package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"catalog-sync/internal/shared/storage/dbutil"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// 连接池参数。调度 tick 加管理 API 的并发度很低，25 个连接已有富余。
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
)

// Dialect PostgreSQL 方言实现
type Dialect struct{}

var _ dbutil.Dialect = (*Dialect)(nil)

func (d *Dialect) DriverType() dbutil.DriverType {
	return dbutil.DriverPostgres
}

func (d *Dialect) Rebind(query string) string {
	return dbutil.RebindToPositional(query)
}

func (d *Dialect) CurrentTimestamp() string {
	return "NOW()"
}

func (d *Dialect) BooleanLiteral(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func (d *Dialect) UpsertConflict(conflictColumn string, updateExprs []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s",
		conflictColumn, strings.Join(updateExprs, ", "))
}

// AutoMigrate 空操作：建表由 deployments/init-db.sql（api-server -init-db）负责
func (d *Dialect) AutoMigrate(db *sql.DB) error {
	return nil
}

// Open 打开 PostgreSQL 连接并验证可达
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// NewDialect 创建 PostgreSQL 方言
func NewDialect() *Dialect {
	return &Dialect{}
}
