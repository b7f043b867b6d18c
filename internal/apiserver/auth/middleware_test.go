package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		// 公开路由
		{"login", "/api/v1/auth/login", true},
		{"refresh", "/api/v1/auth/refresh", true},
		{"tick", "/api/v1/scheduler/tick", true},
		{"health", "/api/v1/health", true},
		{"metrics", "/metrics", true},
		{"ws", "/ws/runs/run-1/events", true},
		{"docs", "/docs", true},
		{"openapi", "/api/v1/openapi.yaml", true},

		// 需要 JWT 的管理路由
		{"list runs", "/api/v1/runs", false},
		{"run detail", "/api/v1/runs/run-1", false},
		{"run cancel", "/api/v1/runs/run-1/cancel", false},
		{"trigger", "/api/v1/runs/trigger", false},
		{"schedule", "/api/v1/schedule", false},
		{"me", "/api/v1/auth/me", false},
		{"users", "/api/v1/auth/users", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isPublicRoute(tt.path)
			if got != tt.expected {
				t.Errorf("isPublicRoute(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestMiddleware_DisabledModePassesThrough(t *testing.T) {
	cfg := DefaultConfig() // 无 JWT 密钥

	called := false
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if user := GetAuthUser(r.Context()); user != nil {
			t.Errorf("无认证模式不应注入用户, got %+v", user)
		}
	}))

	r := httptest.NewRequest("GET", "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if !called {
		t.Fatal("下游 handler 未被调用")
	}
}

func TestMiddleware_RejectsMissingToken(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"

	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("缺少令牌的请求不应到达下游 handler")
	}))

	r := httptest.NewRequest("GET", "/api/v1/runs", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("HTTP 状态码 = %d, 期望 401", w.Code)
	}
}

func TestMiddleware_ValidTokenInjectsUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"

	token, err := GenerateAccessToken(cfg, "usr-1", "ops@example.com", "admin")
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	var got *AuthUser
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetAuthUser(r.Context())
	}))

	r := httptest.NewRequest("GET", "/api/v1/runs", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("HTTP 状态码 = %d, 期望 200", w.Code)
	}
	if got == nil {
		t.Fatal("context 中没有用户")
	}
	if got.ID != "usr-1" || got.Email != "ops@example.com" || got.Role != "admin" {
		t.Errorf("注入的用户 = %+v, 期望 usr-1/ops@example.com/admin", got)
	}
}

func TestMiddleware_RejectsRefreshTokenOnAPI(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "test-secret"

	// refresh 令牌不能当访问令牌用
	token, err := GenerateRefreshToken(cfg, "usr-1")
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}

	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("refresh 令牌不应通过访问校验")
	}))

	r := httptest.NewRequest("GET", "/api/v1/runs", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("HTTP 状态码 = %d, 期望 401", w.Code)
	}
}

func TestAdminOnly(t *testing.T) {
	tests := []struct {
		name       string
		user       *AuthUser
		wantStatus int
	}{
		{"admin passes", &AuthUser{ID: "u1", Role: "admin"}, http.StatusOK},
		{"viewer forbidden", &AuthUser{ID: "u2", Role: "viewer"}, http.StatusForbidden},
		{"no-auth mode passes", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := AdminOnly(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			r := httptest.NewRequest("PUT", "/api/v1/schedule", nil)
			if tt.user != nil {
				r = r.WithContext(WithAuthUser(r.Context(), tt.user))
			}
			w := httptest.NewRecorder()
			handler(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("HTTP 状态码 = %d, 期望 %d", w.Code, tt.wantStatus)
			}
		})
	}
}
