package auth

import (
	"log"
	"net/http"
	"strings"

	"catalog-sync/internal/shared/model"
)

// 免认证路由白名单（前缀匹配）
//
// tick 入口与 WebSocket 网关各自校验自己的令牌
// （X-Tick-Token 头 / token 查询参数），不走 JWT。
var publicPrefixes = []string{
	"/api/v1/auth/login",
	"/api/v1/auth/refresh",
	"/api/v1/scheduler/tick",
	"/api/v1/health",
	"/api/v1/openapi.yaml",
	"/health",
	"/metrics",
	"/docs",
	"/ws/",
}

func isPublicRoute(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// bearerToken 从 Authorization 头提取 Bearer 令牌
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// Middleware 创建 JWT 认证中间件
// 如果 cfg.Enabled() == false，直接放行所有请求（无认证模式）
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled() || isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				respondError(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			claims, err := ParseToken(cfg, token)
			if err != nil {
				log.Printf("[auth] token parse error: %v", err)
				respondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			// refresh 令牌只能换 access 令牌，不能直接访问 API
			if claims.Type != TokenTypeAccess {
				respondError(w, http.StatusUnauthorized, "invalid token type")
				return
			}

			user := &AuthUser{
				ID:    claims.Subject,
				Email: claims.Email,
				Role:  claims.Role,
			}
			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), user)))
		})
	}
}

// AdminOnly 管理员专属路由中间件
//
// 无认证模式下 context 中没有用户（GetAuthUser 返回 nil），此时放行；
// 启用认证后非公开路由必然经过 Middleware 注入用户，nil 只出现在无认证模式。
func AdminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := GetAuthUser(r.Context())
		if user != nil && user.Role != string(model.UserRoleAdmin) {
			respondError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	}
}
