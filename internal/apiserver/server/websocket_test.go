// Package server WebSocket 事件网关单元测试
//
// 本文件测试 EventGateway 的核心功能：
//
// # 测试分组
//
// ## 构造与连接管理
//   - TestNewEventGateway: 验证网关创建、字段初始化
//   - TestAddRemoveClient: 添加/移除客户端与条目清理
//   - TestAddRemoveClient_MultipleRuns: 多个 RunID 独立管理
//   - TestClientCount_Concurrent: 并发安全的客户端计数
//
// ## 入参与鉴权
//   - TestHandleWebSocket_MissingRunID: 缺少 RunID 返回 400
//   - TestHandleWebSocket_RunNotFound: Run 不存在返回 404
//   - TestHandleWebSocket_TokenRequired: 启用认证后查询参数 token 校验
//
// ## 推送（使用 httptest + gorilla/websocket）
//   - TestHandleWebSocket_PollingMode: 无事件总线时轮询模式
//   - TestHandleWebSocket_StreamMode: 重放历史后接入事件流
//   - TestHandleWebSocket_SubscribeFailFallsBack: 订阅失败降级轮询
//   - TestHandleWebSocket_FromSeq: 断线重连跳过已收到的事件
//   - TestHandleWebSocket_PingPong: 心跳消息处理
//   - TestSessionConcurrentWrites: 会话锁串行化并发写
//
// # 使用的 Mock
//   - mockGatewayStore: 实现 gatewayStore 接口
//   - mockRunEventBus: 实现 eventbus.RunEventBus 接口
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"catalog-sync/internal/apiserver/auth"
	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

// ============================================================================
// Mock 实现
// ============================================================================

// mockGatewayStore 模拟 gatewayStore 接口
type mockGatewayStore struct {
	run       *model.Run
	events    []*model.Event
	getRunErr error
	listErr   error

	mu        sync.Mutex
	listCalls int
}

func (m *mockGatewayStore) GetRun(_ context.Context, id string) (*model.Run, error) {
	if m.getRunErr != nil {
		return nil, m.getRunErr
	}
	if m.run == nil || m.run.ID != id {
		return nil, storage.ErrNotFound
	}
	return m.run, nil
}

func (m *mockGatewayStore) ListEventsByRun(_ context.Context, _ string, limit, offset int) ([]*model.Event, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	if offset >= len(m.events) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.events) {
		end = len(m.events)
	}
	return m.events[offset:end], nil
}

// mockRunEventBus 模拟 RunEventBus 接口
//
// SubscribeRunEvents 返回 eventCh 字段控制的通道；subscribeErr
// 非空时返回错误，用于验证降级路径。
type mockRunEventBus struct {
	eventCh      chan *eventbus.RunEvent
	subscribeErr error
}

func (m *mockRunEventBus) PublishRunEvent(_ context.Context, _ string, _ *eventbus.RunEvent) error {
	return nil
}

func (m *mockRunEventBus) GetRunEvents(_ context.Context, _ string, _ string, _ int64) ([]*eventbus.RunEvent, error) {
	return nil, nil
}

func (m *mockRunEventBus) GetRunEventCount(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

func (m *mockRunEventBus) SubscribeRunEvents(_ context.Context, _ string) (<-chan *eventbus.RunEvent, error) {
	if m.subscribeErr != nil {
		return nil, m.subscribeErr
	}
	return m.eventCh, nil
}

func (m *mockRunEventBus) DeleteRunEvents(_ context.Context, _ string) error {
	return nil
}

// newGatewayServer 把网关挂到 httptest.Server 上，返回 ws URL 前缀
func newGatewayServer(t *testing.T, gw *EventGateway) (*httptest.Server, string) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/runs/{id}/events", gw.HandleWebSocket)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, "ws" + strings.TrimPrefix(server.URL, "http")
}

// readUntilStatus 读消息直到收到 status（或读失败），返回全部消息
func readUntilStatus(t *testing.T, client *websocket.Conn, deadline time.Duration) []map[string]interface{} {
	t.Helper()
	var messages []map[string]interface{}
	client.SetReadDeadline(time.Now().Add(deadline))
	for {
		_, msg, err := client.ReadMessage()
		if err != nil {
			return messages
		}
		var m map[string]interface{}
		json.Unmarshal(msg, &m)
		messages = append(messages, m)
		if m["type"] == "status" {
			return messages
		}
	}
}

// ============================================================================
// 构造与连接管理测试
// ============================================================================

func TestNewEventGateway(t *testing.T) {
	store := &mockGatewayStore{}
	bus := &mockRunEventBus{}

	gw := NewEventGateway(store, bus)

	if gw == nil {
		t.Fatal("NewEventGateway 返回了 nil")
	}
	if gw.bus != bus {
		t.Error("bus 未正确注入")
	}
	if gw.clients == nil {
		t.Error("clients map 应已初始化")
	}
}

// TestAddRemoveClient 添加/移除客户端，最后一个客户端移除后清理条目
func TestAddRemoveClient(t *testing.T) {
	gw := NewEventGateway(&mockGatewayStore{}, nil)
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	gw.addClient("run-1", conn1)
	gw.addClient("run-1", conn2)

	if got := gw.ClientCount("run-1"); got != 2 {
		t.Errorf("ClientCount = %d, 期望 2", got)
	}

	gw.removeClient("run-1", conn1)
	if got := gw.ClientCount("run-1"); got != 1 {
		t.Errorf("移除一个后 ClientCount = %d, 期望 1", got)
	}

	gw.removeClient("run-1", conn2)
	gw.mu.RLock()
	if _, ok := gw.clients["run-1"]; ok {
		t.Error("最后一个客户端移除后 run-1 条目应被清理")
	}
	gw.mu.RUnlock()

	// 移除不存在的条目不 panic
	gw.removeClient("run-unknown", conn1)
}

func TestAddRemoveClient_MultipleRuns(t *testing.T) {
	gw := NewEventGateway(&mockGatewayStore{}, nil)
	conn1 := &websocket.Conn{}
	conn2 := &websocket.Conn{}

	gw.addClient("run-1", conn1)
	gw.addClient("run-2", conn2)

	gw.removeClient("run-1", conn1)

	if got := gw.ClientCount("run-1"); got != 0 {
		t.Errorf("run-1 ClientCount = %d, 期望 0", got)
	}
	if got := gw.ClientCount("run-2"); got != 1 {
		t.Errorf("run-2 ClientCount = %d, 期望 1", got)
	}
}

// TestClientCount_Concurrent 并发添加/移除后状态一致
func TestClientCount_Concurrent(t *testing.T) {
	gw := NewEventGateway(&mockGatewayStore{}, nil)

	conns := make([]*websocket.Conn, 50)
	for i := range conns {
		conns[i] = &websocket.Conn{}
	}

	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			gw.addClient("run-c", conns[idx])
		}(i)
	}
	wg.Wait()

	if got := gw.ClientCount("run-c"); got != 50 {
		t.Errorf("ClientCount = %d, 期望 50", got)
	}

	for i := range conns {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			gw.removeClient("run-c", conns[idx])
		}(i)
	}
	wg.Wait()

	if got := gw.ClientCount("run-c"); got != 0 {
		t.Errorf("全部移除后 ClientCount = %d, 期望 0", got)
	}
}

// ============================================================================
// 入参与鉴权测试
// ============================================================================

func TestHandleWebSocket_MissingRunID(t *testing.T) {
	gw := NewEventGateway(&mockGatewayStore{}, nil)

	req := httptest.NewRequest("GET", "/ws/runs//events", nil)
	w := httptest.NewRecorder()

	gw.HandleWebSocket(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("HTTP 状态码 = %d, 期望 %d", w.Code, http.StatusBadRequest)
	}
}

func TestHandleWebSocket_RunNotFound(t *testing.T) {
	gw := NewEventGateway(&mockGatewayStore{}, nil)
	_, wsURL := newGatewayServer(t, gw)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-missing/events", nil)
	if err == nil {
		t.Fatal("Run 不存在时握手应失败")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("HTTP 状态码 = %v, 期望 404", resp)
	}
}

// TestHandleWebSocket_TokenRequired 启用认证后校验查询参数 token
func TestHandleWebSocket_TokenRequired(t *testing.T) {
	cfg := auth.Config{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
	}
	store := &mockGatewayStore{
		run: &model.Run{ID: "run-1", Status: model.RunStatusRunning},
	}
	gw := NewEventGateway(store, nil)
	gw.SetAuthConfig(cfg)
	_, wsURL := newGatewayServer(t, gw)

	// 无 token 拒绝
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-1/events", nil)
	if err == nil {
		t.Fatal("缺少 token 时握手应失败")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("HTTP 状态码 = %v, 期望 401", resp)
	}

	// refresh token 拒绝（只认 access）
	refresh, err := auth.GenerateRefreshToken(cfg, "usr-1")
	if err != nil {
		t.Fatalf("生成 refresh token 失败: %v", err)
	}
	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-1/events?token="+refresh, nil)
	if err == nil {
		t.Fatal("refresh token 应被拒绝")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("HTTP 状态码 = %v, 期望 401", resp)
	}

	// 有效 access token 放行
	token, err := auth.GenerateAccessToken(cfg, "usr-1", "ops@example.com", "admin")
	if err != nil {
		t.Fatalf("生成 access token 失败: %v", err)
	}
	client, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-1/events?token="+token, nil)
	if err != nil {
		t.Fatalf("有效 token 握手失败: %v", err)
	}
	client.Close()
}

// ============================================================================
// 推送测试
// ============================================================================

// TestHandleWebSocket_PollingMode 无事件总线时轮询推送事件与终态
func TestHandleWebSocket_PollingMode(t *testing.T) {
	now := time.Now().UTC()
	finishedAt := now.Add(time.Minute)

	store := &mockGatewayStore{
		events: []*model.Event{
			{ID: 1, RunID: "run-1", Level: model.EventLevelInfo, Message: model.EventRunStarted, CreatedAt: now},
		},
		run: &model.Run{
			ID:         "run-1",
			Status:     model.RunStatusSuccess,
			FinishedAt: &finishedAt,
		},
	}

	gw := NewEventGateway(store, nil)
	_, wsURL := newGatewayServer(t, gw)

	client, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-1/events", nil)
	if err != nil {
		t.Fatalf("握手失败: %v", err)
	}
	defer client.Close()

	messages := readUntilStatus(t, client, 3*time.Second)
	if len(messages) < 2 {
		t.Fatalf("消息数 = %d, 期望至少 2（事件 + 状态）", len(messages))
	}

	if messages[0]["type"] != "event" {
		t.Errorf("第一条消息 type = %v, 期望 event", messages[0]["type"])
	}
	last := messages[len(messages)-1]
	if last["type"] != "status" {
		t.Fatalf("最后一条消息 type = %v, 期望 status", last["type"])
	}
	data, _ := last["data"].(map[string]interface{})
	if data["status"] != string(model.RunStatusSuccess) {
		t.Errorf("终态 = %v, 期望 %s", data["status"], model.RunStatusSuccess)
	}
}

// TestHandleWebSocket_StreamMode 重放历史事件后接入事件流，
// 收尾事件触发终态通知并关闭连接
func TestHandleWebSocket_StreamMode(t *testing.T) {
	now := time.Now().UTC()
	finishedAt := now.Add(time.Minute)

	store := &mockGatewayStore{
		events: []*model.Event{
			{ID: 1, RunID: "run-1", Level: model.EventLevelInfo, Message: model.EventRunStarted, CreatedAt: now},
		},
		run: &model.Run{
			ID:         "run-1",
			Status:     model.RunStatusSuccess,
			FinishedAt: &finishedAt,
		},
	}

	eventCh := make(chan *eventbus.RunEvent, 10)
	bus := &mockRunEventBus{eventCh: eventCh}
	gw := NewEventGateway(store, bus)
	_, wsURL := newGatewayServer(t, gw)

	client, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-1/events", nil)
	if err != nil {
		t.Fatalf("握手失败: %v", err)
	}
	defer client.Close()

	// 实时事件 + 收尾事件
	eventCh <- &eventbus.RunEvent{
		RunID: "run-1", Seq: 2, Level: "INFO",
		Message: model.EventStepCompleted, Timestamp: now,
		Details: map[string]interface{}{"step": "export"},
	}
	eventCh <- &eventbus.RunEvent{
		RunID: "run-1", Seq: 3, Level: "INFO",
		Message: model.EventRunFinalized, Timestamp: now,
	}

	messages := readUntilStatus(t, client, 3*time.Second)
	if len(messages) < 4 {
		t.Fatalf("消息数 = %d, 期望至少 4（重放 + 2 事件 + 状态）", len(messages))
	}

	// 第一条是重放的历史事件
	data, _ := messages[0]["data"].(map[string]interface{})
	if data["message"] != model.EventRunStarted {
		t.Errorf("重放消息 = %v, 期望 %s", data["message"], model.EventRunStarted)
	}

	last := messages[len(messages)-1]
	if last["type"] != "status" {
		t.Fatalf("最后一条消息 type = %v, 期望 status", last["type"])
	}
	statusData, _ := last["data"].(map[string]interface{})
	if statusData["status"] != string(model.RunStatusSuccess) {
		t.Errorf("终态 = %v, 期望 %s", statusData["status"], model.RunStatusSuccess)
	}
}

// TestHandleWebSocket_SubscribeFailFallsBack 订阅失败降级到轮询
func TestHandleWebSocket_SubscribeFailFallsBack(t *testing.T) {
	now := time.Now().UTC()
	finishedAt := now.Add(time.Minute)

	store := &mockGatewayStore{
		events: []*model.Event{
			{ID: 1, RunID: "run-1", Level: model.EventLevelInfo, Message: model.EventRunStarted, CreatedAt: now},
		},
		run: &model.Run{
			ID:         "run-1",
			Status:     model.RunStatusTimeout,
			FinishedAt: &finishedAt,
		},
	}

	bus := &mockRunEventBus{subscribeErr: context.DeadlineExceeded}
	gw := NewEventGateway(store, bus)
	_, wsURL := newGatewayServer(t, gw)

	client, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-1/events", nil)
	if err != nil {
		t.Fatalf("握手失败: %v", err)
	}
	defer client.Close()

	messages := readUntilStatus(t, client, 5*time.Second)
	if len(messages) == 0 {
		t.Fatal("降级轮询后应收到消息")
	}
	last := messages[len(messages)-1]
	if last["type"] != "status" {
		t.Errorf("最后一条消息 type = %v, 期望 status", last["type"])
	}
}

// TestHandleWebSocket_FromSeq 断线重连跳过序号不大于 from_seq 的事件
func TestHandleWebSocket_FromSeq(t *testing.T) {
	now := time.Now().UTC()
	finishedAt := now.Add(time.Minute)

	store := &mockGatewayStore{
		events: []*model.Event{
			{ID: 4, RunID: "run-1", Level: model.EventLevelInfo, Message: model.EventStepStarted, CreatedAt: now},
			{ID: 5, RunID: "run-1", Level: model.EventLevelInfo, Message: model.EventStepCompleted, CreatedAt: now},
			{ID: 6, RunID: "run-1", Level: model.EventLevelInfo, Message: model.EventRunCompleted, CreatedAt: now},
		},
		run: &model.Run{
			ID:         "run-1",
			Status:     model.RunStatusSuccess,
			FinishedAt: &finishedAt,
		},
	}

	gw := NewEventGateway(store, nil)
	_, wsURL := newGatewayServer(t, gw)

	client, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-1/events?from_seq=5", nil)
	if err != nil {
		t.Fatalf("握手失败: %v", err)
	}
	defer client.Close()

	messages := readUntilStatus(t, client, 3*time.Second)

	var eventSeqs []float64
	for _, m := range messages {
		if m["type"] != "event" {
			continue
		}
		data, _ := m["data"].(map[string]interface{})
		seq, _ := data["seq"].(float64)
		eventSeqs = append(eventSeqs, seq)
	}

	if len(eventSeqs) != 1 || eventSeqs[0] != 6 {
		t.Errorf("推送的事件序号 = %v, 期望只有 [6]", eventSeqs)
	}
}

// TestHandleWebSocket_PingPong 客户端心跳收到 pong 响应
func TestHandleWebSocket_PingPong(t *testing.T) {
	store := &mockGatewayStore{
		run: &model.Run{ID: "run-1", Status: model.RunStatusRunning},
	}
	gw := NewEventGateway(store, nil)
	_, wsURL := newGatewayServer(t, gw)

	client, _, err := websocket.DefaultDialer.Dial(wsURL+"/ws/runs/run-1/events", nil)
	if err != nil {
		t.Fatalf("握手失败: %v", err)
	}
	defer client.Close()

	if err := client.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("发送 ping 失败: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("读取 pong 失败: %v", err)
	}

	var m map[string]interface{}
	json.Unmarshal(msg, &m)
	if m["type"] != "pong" {
		t.Errorf("响应 type = %v, 期望 pong", m["type"])
	}
}

// TestSessionConcurrentWrites pong 回复与推送循环分属不同 goroutine，
// 并发写必须经会话锁串行化，否则底层连接不允许多个写入方
func TestSessionConcurrentWrites(t *testing.T) {
	upgraded := make(chan *websocket.Conn, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgraded <- conn
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("握手失败: %v", err)
	}
	defer client.Close()

	conn := <-upgraded
	sess := &wsSession{conn: conn}

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if err := sess.writeJSON(map[string]interface{}{"type": "event", "writer": n, "seq": j}); err != nil {
					t.Errorf("并发写失败: writer=%d seq=%d err=%v", n, j, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	conn.Close()

	received := 0
	client.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, _, err := client.ReadMessage()
		if err != nil {
			break
		}
		received++
	}

	if received != writers*perWriter {
		t.Errorf("收到消息数 = %d, 期望 %d", received, writers*perWriter)
	}
}
