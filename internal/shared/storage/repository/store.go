// Package repository SQL 存储实现
//
// runs / events / schedule_config / users 四张表的读写都集中在这里。
// SQL 统一按 PostgreSQL 风格书写，经 dbutil.Dialect 在运行时适配
// SQLite。条件写（UpdateRunIfRunning）依赖单条 UPDATE 的原子性，
// 对两种数据库同样成立。
package repository

import (
	"database/sql"

	"catalog-sync/internal/shared/storage/dbutil"
)

// Store 基于 database/sql 的存储实现，组合出 storage.Store
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

// NewStore 用已打开的连接和对应方言构造存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close 关闭底层连接池
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind 把 PG 占位符风格的 SQL 转成当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}
