package repository

import (
	"context"
	"database/sql"
	"time"

	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// userColumns 用户表的查询列
const userColumns = `id, email, username, password_hash, role, status, created_at, updated_at`

// CreateUser 创建用户
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	query := s.rebind(`INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.PasswordHash,
		user.Role, user.Status, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// GetUserByEmail 通过邮箱查找用户
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE email = $1`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// GetUserByID 通过 ID 查找用户
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users WHERE id = $1`)
	return s.scanUser(s.db.QueryRowContext(ctx, query, id))
}

// UpdateUserPassword 更新用户密码
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	query := s.rebind(`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`)
	res, err := s.db.ExecContext(ctx, query, passwordHash, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListUsers 列出所有用户
func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	query := s.rebind(`SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u := &model.User{}
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash,
			&u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// scanUser 从单行结果扫描用户，未找到映射为 storage.ErrNotFound
func (s *Store) scanUser(row *sql.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
