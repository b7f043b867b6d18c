package model

import "time"

// UserRole 用户角色
type UserRole string

const (
	// UserRoleAdmin 管理员：可修改排程、手动触发与取消
	UserRoleAdmin UserRole = "admin"

	// UserRoleViewer 只读：仅可查看 Run、事件与配置
	UserRoleViewer UserRole = "viewer"
)

// UserStatus 用户状态
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User 控制台用户
type User struct {
	ID           string     `json:"id" bson:"_id" db:"id"`
	Email        string     `json:"email" bson:"email" db:"email"`
	Username     string     `json:"username" bson:"username" db:"username"`
	PasswordHash string     `json:"-" bson:"password_hash" db:"password_hash"` // never expose in JSON
	Role         UserRole   `json:"role" bson:"role" db:"role"`
	Status       UserStatus `json:"status" bson:"status" db:"status"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" bson:"updated_at" db:"updated_at"`
}
