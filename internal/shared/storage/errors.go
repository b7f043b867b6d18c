// Package storage 定义存储层领域错误
//
// 这些错误用于隔离业务层与底层存储引擎的错误类型，
// 各驱动实现（repository/mongostore）负责将底层错误转换为这些领域错误。
package storage

import "errors"

var (
	// ErrNotFound 实体不存在
	// 替代 sql.ErrNoRows / mongo.ErrNoDocuments
	ErrNotFound = errors.New("entity not found")

	// ErrConflict 条件写未生效（Run 已不处于 running 状态）
	ErrConflict = errors.New("conflict: conditional write refused")

	// ErrDuplicate 唯一键冲突（INSERT 重复 ID）
	ErrDuplicate = errors.New("duplicate: entity already exists")

	// ErrInvalidInput 写入数据未通过形状校验（如未知步骤状态）
	ErrInvalidInput = errors.New("invalid input: schema validation failed")
)
