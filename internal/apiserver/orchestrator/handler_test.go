package orchestrator

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"catalog-sync/internal/shared/model"
)

// newTestHandler 组装带固定时钟的 tick 入口
func newTestHandler(store *fakeStore, token string) (*Handler, *http.ServeMux) {
	o, _, _, _ := newTestOrchestrator(store)
	handler := NewHandler(o, token)
	handler.clock = func() time.Time { return testNow }

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return handler, mux
}

func TestHandleTick_Authorized(t *testing.T) {
	cfg := intervalConfig(360)
	cfg.Enabled = false
	_, mux := newTestHandler(newFakeStore(cfg), "tick-secret")

	req := httptest.NewRequest("POST", "/api/v1/scheduler/tick", nil)
	req.Header.Set(TickTokenHeader, "tick-secret")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("HTTP 状态码 = %d, 期望 200, 响应: %s", w.Code, w.Body.String())
	}

	var result TickResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if result.Status != StatusSkipped || result.Reason != ReasonDisabled {
		t.Errorf("期望 skipped/disabled, 得到 %s/%s", result.Status, result.Reason)
	}
}

func TestHandleTick_InvalidToken(t *testing.T) {
	store := newFakeStore(intervalConfig(360))
	// 有活跃 Run 时，鉴权失败要在它的事件流里留痕
	store.addRun(runningRun("run-1", testNow.Add(-5*time.Minute)))
	_, mux := newTestHandler(store, "tick-secret")

	req := httptest.NewRequest("POST", "/api/v1/scheduler/tick", nil)
	req.Header.Set(TickTokenHeader, "wrong-token")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("HTTP 状态码 = %d, 期望 401", w.Code)
	}
	var result TickResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if result.Status != StatusError || result.Reason != ReasonAuth {
		t.Errorf("响应 = %+v, 期望 status=%s reason=%s", result, StatusError, ReasonAuth)
	}
	if !store.hasEvent("run-1", model.EventTickAuthFailed) {
		t.Error("期望活跃 Run 上有 tick_auth_failed 事件")
	}
	// 鉴权失败永远不停用排程
	if !store.config.Enabled {
		t.Error("鉴权失败不得停用排程")
	}
}

func TestHandleTick_EmptyServerToken(t *testing.T) {
	_, mux := newTestHandler(newFakeStore(intervalConfig(360)), "")

	req := httptest.NewRequest("POST", "/api/v1/scheduler/tick", nil)
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	// 未配置密钥时拒绝一切请求，不能变成无鉴权入口
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("HTTP 状态码 = %d, 期望 401", w.Code)
	}
}

func TestHandleTick_InternalError(t *testing.T) {
	store := newFakeStore(nil)
	store.getConfigErr = errTestStore
	_, mux := newTestHandler(store, "tick-secret")

	req := httptest.NewRequest("POST", "/api/v1/scheduler/tick", nil)
	req.Header.Set(TickTokenHeader, "tick-secret")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("HTTP 状态码 = %d, 期望 500, 响应: %s", w.Code, w.Body.String())
	}

	var result TickResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("响应解析失败: %v", err)
	}
	if result.Status != StatusError {
		t.Errorf("期望 status=error, 得到 %s", result.Status)
	}
}

func TestHandleTick_MethodNotAllowed(t *testing.T) {
	_, mux := newTestHandler(newFakeStore(intervalConfig(360)), "tick-secret")

	req := httptest.NewRequest("GET", "/api/v1/scheduler/tick", nil)
	req.Header.Set(TickTokenHeader, "tick-secret")
	w := httptest.NewRecorder()

	mux.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("HTTP 状态码 = %d, 期望 405", w.Code)
	}
}
