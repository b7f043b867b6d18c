// Package factory 存储工厂
//
// 根据驱动类型创建持久化存储：
//   - postgres：生产部署（pgx stdlib 驱动）
//   - sqlite：单机部署与测试（modernc 纯 Go 驱动，含自动建表）
//   - mongodb：文档存储部署（官方 mongo-driver）
//
// 工厂单独成包：storage 包只放接口与哨兵错误，repository/mongostore
// 等实现包引用 storage，工厂再引用实现包，依赖保持单向。
package factory

import (
	"fmt"
	"net/url"
	"strings"

	"catalog-sync/internal/shared/storage"
	"catalog-sync/internal/shared/storage/dbutil"
	pgdriver "catalog-sync/internal/shared/storage/driver/postgres"
	sqlitedriver "catalog-sync/internal/shared/storage/driver/sqlite"
	"catalog-sync/internal/shared/storage/mongostore"
	"catalog-sync/internal/shared/storage/repository"
)

// DefaultMongoDatabase MongoDB DSN 未携带数据库名时的默认库名
const DefaultMongoDatabase = "catalog_sync"

// ============================================================================
// 各驱动构造函数
// ============================================================================

// RepositoryStore 是 repository.Store 的类型别名
type RepositoryStore = repository.Store

// NewPostgresStore 创建 PostgreSQL 存储（建表由 init-db.sql 负责）
func NewPostgresStore(databaseURL string) (*RepositoryStore, error) {
	db, err := pgdriver.Open(databaseURL)
	if err != nil {
		return nil, err
	}
	return repository.NewStore(db, pgdriver.NewDialect()), nil
}

// NewMongoStore 创建 MongoDB 存储
var NewMongoStore = mongostore.NewStore

// NewSQLiteStore 创建 SQLite 存储（含自动建表）
func NewSQLiteStore(dsn string) (*RepositoryStore, error) {
	db, err := sqlitedriver.Open(dsn)
	if err != nil {
		return nil, err
	}
	dialect := sqlitedriver.NewDialect()
	if err := dialect.AutoMigrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite auto-migrate failed: %w", err)
	}
	return repository.NewStore(db, dialect), nil
}

// ============================================================================
// 多数据库工厂函数
// ============================================================================

// NewStoreFromDSN 根据驱动类型和 DSN 创建持久化存储。
// mongodb 的数据库名取自 DSN 的路径段（mongodb://host:port/dbname），
// 缺省时使用 DefaultMongoDatabase。
func NewStoreFromDSN(driver dbutil.DriverType, dsn string) (storage.Store, error) {
	switch driver {
	case dbutil.DriverPostgres:
		return NewPostgresStore(dsn)
	case dbutil.DriverSQLite:
		return NewSQLiteStore(dsn)
	case dbutil.DriverMongoDB:
		dbName, err := mongoDatabaseFromDSN(dsn)
		if err != nil {
			return nil, err
		}
		return NewMongoStore(dsn, dbName)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

func mongoDatabaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mongodb DSN: %w", err)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}
	return dbName, nil
}
