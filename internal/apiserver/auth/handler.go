package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	openapi "catalog-sync/api/generated/go"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// UserStore 用户存储接口。查找未命中返回 storage.ErrNotFound。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	ListUsers(ctx context.Context) ([]*model.User, error)
}

// Handler 认证 HTTP 处理器
type Handler struct {
	store UserStore
	cfg   Config
}

// NewHandler 创建认证处理器
func NewHandler(store UserStore, cfg Config) *Handler {
	return &Handler{store: store, cfg: cfg}
}

// RegisterRoutes 注册认证相关路由
//
// 没有开放注册入口：操作员账号由启动种子（EnsureAdminUser）
// 或管理员通过 /auth/users 创建。
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("PUT /api/v1/auth/password", h.ChangePassword)
	mux.HandleFunc("POST /api/v1/auth/users", AdminOnly(h.CreateUser))
	mux.HandleFunc("GET /api/v1/auth/users", AdminOnly(h.ListUsers))
}

// ============================================================================
// 请求/响应类型
// ============================================================================

// 请求体类型来自 api/openapi/openapi.yaml 生成的模型，
// 处理器与文档描述的契约保持同源。
type loginRequest = openapi.LoginRequest

type refreshRequest = openapi.RefreshRequest

type changePasswordRequest = openapi.ChangePasswordRequest

type createUserRequest = openapi.CreateUserRequest

type authResponse struct {
	User         *model.User `json:"user"`
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token,omitempty"`
}

// ============================================================================
// Handlers
// ============================================================================

// lookupByEmail 按邮箱查用户，未命中返回 (nil, nil)
func (h *Handler) lookupByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := h.store.GetUserByEmail(ctx, email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

// Login 用户登录，签发 access + refresh 令牌对
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.lookupByEmail(r.Context(), string(req.Email))
	if err != nil {
		log.Printf("[auth.login] GetUserByEmail error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// 未知邮箱与密码错误统一报 401，不区分哪个错了
	if user == nil || !CheckPassword(req.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if user.Status == model.UserStatusDisabled {
		respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	accessToken, err := GenerateAccessToken(h.cfg, user.ID, user.Email, string(user.Role))
	if err != nil {
		log.Printf("[auth.login] token generation error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	refreshToken, err := GenerateRefreshToken(h.cfg, user.ID)
	if err != nil {
		log.Printf("[auth.login] token generation error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User logged in: %s", user.Email)
	respondJSON(w, http.StatusOK, authResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

// Refresh 用 refresh 令牌换新的 access 令牌
//
// 每次刷新都回查用户：令牌有效期内被停用的账号在这里被拦下。
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	claims, err := ParseToken(h.cfg, req.RefreshToken)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}
	if claims.Type != TokenTypeRefresh {
		respondError(w, http.StatusUnauthorized, "invalid token type")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), claims.Subject)
	if err != nil || user == nil {
		respondError(w, http.StatusUnauthorized, "user not found")
		return
	}
	if user.Status == model.UserStatusDisabled {
		respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	accessToken, err := GenerateAccessToken(h.cfg, user.ID, user.Email, string(user.Role))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"access_token": accessToken})
}

// Me 返回当前令牌对应的用户
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// ChangePassword 校验旧密码后更新哈希
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		respondError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case req.OldPassword == "" || req.NewPassword == "":
		respondError(w, http.StatusBadRequest, "old_password and new_password are required")
		return
	case len(req.NewPassword) < 8:
		respondError(w, http.StatusBadRequest, "new password must be at least 8 characters")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		respondError(w, http.StatusNotFound, "user not found")
		return
	}
	if !CheckPassword(req.OldPassword, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "incorrect old password")
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.store.UpdateUserPassword(r.Context(), user.ID, hash); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update password")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// validateCreateUser 校验新用户请求，返回解析后的角色
// message 非空表示校验失败
func validateCreateUser(req createUserRequest) (role model.UserRole, message string) {
	switch {
	case req.Email == "" || req.Username == "" || req.Password == "":
		return "", "email, username, password are required"
	case !isValidEmail(string(req.Email)):
		return "", "invalid email format"
	case len(req.Password) < 8:
		return "", "password must be at least 8 characters"
	}

	role = model.UserRole(req.Role)
	if role == "" {
		role = model.UserRoleViewer
	}
	if role != model.UserRoleAdmin && role != model.UserRoleViewer {
		return "", "role must be admin or viewer"
	}
	return role, ""
}

// CreateUser 创建操作员账号（仅管理员）
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	role, msg := validateCreateUser(req)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := h.lookupByEmail(r.Context(), string(req.Email))
	if err != nil {
		log.Printf("[auth.create_user] GetUserByEmail error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		respondError(w, http.StatusConflict, "email already registered")
		return
	}

	user, err := newUser(string(req.Email), req.Username, req.Password, role)
	if err != nil {
		log.Printf("[auth.create_user] HashPassword error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		log.Printf("[auth.create_user] CreateUser error: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	log.Printf("[auth] User created: %s role=%s", user.Email, user.Role)
	respondJSON(w, http.StatusCreated, user)
}

// ListUsers 列出操作员账号（仅管理员）
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		log.Printf("[auth.list_users] ListUsers error: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// newUser 组装一个启用状态的新用户，密码即时哈希
func newUser(email, username, password string, role model.UserRole) (*model.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &model.User{
		ID:           generateID("usr"),
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Status:       model.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// EnsureAdminUser 启动时种子管理员账号
// 配置了 admin_email 且该邮箱不存在时创建，重复调用幂等
func EnsureAdminUser(store UserStore, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	existing, err := store.GetUserByEmail(ctx, adminEmail)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		log.Printf("[auth] Admin user already exists: %s (%s)", adminEmail, existing.ID)
		return nil
	}

	user, err := newUser(adminEmail, "Admin", adminPassword, model.UserRoleAdmin)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] Created admin user: %s (%s)", adminEmail, user.ID)
	return nil
}
