// Package deployments 嵌入部署相关文件到二进制
//
// init-db.sql 为 PostgreSQL 全量建表脚本，api-server -init-db 直接执行，
// 无需在目标机器上携带 SQL 文件。
package deployments

import _ "embed"

// InitDBSQL PostgreSQL 全量初始化脚本（幂等，可重复执行）
//
//go:embed init-db.sql
var InitDBSQL string
