// Package dbutil SQL 方言抽象
//
// repository 层的 SQL 全部按 PostgreSQL 风格书写，SQLite 的差异
// （? 占位符、datetime('now')、整型布尔、无 ::cast）由 Dialect 在
// 运行时抹平，业务代码不感知当前数据库。
package dbutil

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
)

// DriverType 数据库驱动类型
type DriverType string

const (
	DriverPostgres DriverType = "postgres"
	DriverSQLite   DriverType = "sqlite"

	// DriverMongoDB 仅用于存储工厂选择，没有对应的 SQL Dialect
	DriverMongoDB DriverType = "mongodb"
)

// Dialect 数据库方言接口
type Dialect interface {
	// DriverType 返回驱动类型标识
	DriverType() DriverType

	// Rebind 把 $1, $2 风格的占位符转换为目标数据库的格式
	Rebind(query string) string

	// CurrentTimestamp 返回当前时间戳的 SQL 表达式
	CurrentTimestamp() string

	// BooleanLiteral 返回布尔字面量（SQLite 以 0/1 存布尔列）
	BooleanLiteral(b bool) string

	// UpsertConflict 生成 UPSERT 的冲突处理子句。
	// updateExprs 形如 "enabled = EXCLUDED.enabled"，两种数据库
	// 都支持 EXCLUDED 伪表。
	UpsertConflict(conflictColumn string, updateExprs []string) string

	// AutoMigrate 按需建表。PostgreSQL 由部署脚本建表，这里是空操作；
	// SQLite 在首次打开时执行内置 schema。
	AutoMigrate(db *sql.DB) error
}

var (
	pgPlaceholderRe = regexp.MustCompile(`\$(\d+)`)
	pgCastRe        = regexp.MustCompile(`::(\w+)`)
)

// RebindToPositional PostgreSQL 原样保留 $N 占位符
func RebindToPositional(query string) string {
	return query
}

// RebindToQuestion 把 $N 占位符改写为 ?
//
// 仅对参数顺序与占位符编号一致的 SQL 成立，repository 层的查询
// 都满足这个前提。
func RebindToQuestion(query string) string {
	return pgPlaceholderRe.ReplaceAllString(query, "?")
}

// StripPgCasts 去掉 ::varchar 这类 PostgreSQL 专属的类型转换
func StripPgCasts(query string) string {
	return pgCastRe.ReplaceAllString(query, "")
}

// BuildDynamicQuery 拼接可选 WHERE 条件并按方言转换占位符
func BuildDynamicQuery(d Dialect, baseQuery string, conditions []string, args []interface{}) (string, []interface{}) {
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}
	return d.Rebind(baseQuery), args
}

// PlaceholderList 生成从 start 起连续 count 个占位符，如 "$2, $3, $4"
func PlaceholderList(d Dialect, start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return d.Rebind(strings.Join(parts, ", "))
}
