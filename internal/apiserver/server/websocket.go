// Package server WebSocket 事件网关
//
// 事件网关提供实时事件推送能力，支持控制台实时跟踪同步执行过程。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"catalog-sync/internal/apiserver/auth"
	"catalog-sync/internal/shared/eventbus"
	"catalog-sync/internal/shared/model"
	"catalog-sync/internal/shared/storage"
)

const (
	// wsWriteTimeout 单次写操作的超时
	wsWriteTimeout = 10 * time.Second
	// wsPongWait 读超时，收到 pong 后顺延
	wsPongWait = 60 * time.Second
	// wsPingInterval 服务端 ping 间隔，必须小于 wsPongWait
	wsPingInterval = 30 * time.Second
	// wsPollInterval 轮询降级模式的查库间隔
	wsPollInterval = 500 * time.Millisecond
	// wsReplayLimit 单次连接重放的历史事件上限
	wsReplayLimit = 200
)

// upgrader WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsSession 串行化同一连接上的写操作
//
// gorilla/websocket 只允许一个并发写入方，而 pong 回复（readPump）
// 与事件推送（write pump）分属两个 goroutine，所有写统一走这里加锁。
type wsSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *wsSession) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteJSON(v)
}

func (s *wsSession) writePing() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

// gatewayStore 网关需要的存储能力（历史事件重放与 Run 状态检查）
type gatewayStore interface {
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListEventsByRun(ctx context.Context, runID string, limit, offset int) ([]*model.Event, error)
}

// EventGateway WebSocket 事件网关
//
// 事件网关负责：
//   - 管理 WebSocket 连接
//   - 重放历史事件后接入 Redis Streams 实时流
//   - 事件总线缺席时降级轮询数据库
//   - 在 Run 进入终态时通知客户端并关闭连接
type EventGateway struct {
	store   gatewayStore                        // 持久化存储层（历史事件与 Run 状态）
	bus     eventbus.RunEventBus                // Run 事件流（实时推送）
	authCfg auth.Config                         // 认证配置（token 查询参数校验）
	metrics *Metrics                            // 指标（可为空）
	clients map[string]map[*websocket.Conn]bool // 按 RunID 索引的客户端连接
	mu      sync.RWMutex                        // 保护 clients 映射
}

// NewEventGateway 创建事件网关实例
func NewEventGateway(store gatewayStore, bus eventbus.RunEventBus) *EventGateway {
	return &EventGateway{
		store:   store,
		bus:     bus,
		clients: make(map[string]map[*websocket.Conn]bool),
	}
}

// SetEventBus 设置事件总线
func (g *EventGateway) SetEventBus(bus eventbus.RunEventBus) {
	g.bus = bus
}

// SetAuthConfig 设置认证配置
func (g *EventGateway) SetAuthConfig(cfg auth.Config) {
	g.authCfg = cfg
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/runs/{id}/events
//
// 查询参数：
//   - token: 访问令牌（浏览器 WebSocket 无法携带 Authorization header）
//   - from_seq: 起始事件序号（可选），断线重连时跳过已收到的事件
//
// 推送消息格式：
//
//	事件消息：{"type": "event", "data": {"seq": ..., "level": ..., "message": ..., ...}}
//	状态消息：{"type": "status", "data": {"status": "success", "finished_at": "..."}}
//
// 客户端消息：
//
//	心跳：{"type": "ping"} -> 响应 {"type": "pong"}
//
// 推送模式：优先 Redis Streams 实时流，事件总线缺席或订阅失败时
// 降级轮询数据库。
func (g *EventGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if runID == "" {
		http.Error(w, "run_id required", http.StatusBadRequest)
		return
	}

	if !g.authorize(r) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	// Run 必须存在，不给任意 ID 挂长连接
	if _, err := g.store.GetRun(r.Context(), runID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
		} else {
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	fromSeq, _ := strconv.ParseInt(r.URL.Query().Get("from_seq"), 10, 64)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws.upgrade.failed] run_id=%s error=%v", runID, err)
		return
	}
	defer conn.Close()

	g.addClient(runID, conn)
	defer g.removeClient(runID, conn)

	log.Printf("[ws.connected] run_id=%s from_seq=%d", runID, fromSeq)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &wsSession{conn: conn}
	go g.readPump(conn, sess, cancel)

	if g.bus != nil {
		g.writePumpStream(ctx, sess, runID, fromSeq)
		return
	}
	g.writePumpPolling(ctx, sess, runID, fromSeq)
}

// authorize 校验查询参数里的访问令牌；未启用认证时直接放行
func (g *EventGateway) authorize(r *http.Request) bool {
	if !g.authCfg.Enabled() {
		return true
	}
	claims, err := auth.ParseToken(g.authCfg, r.URL.Query().Get("token"))
	if err != nil {
		return false
	}
	return claims.Type == auth.TokenTypeAccess
}

// addClient 添加客户端连接
func (g *EventGateway) addClient(runID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.clients[runID] == nil {
		g.clients[runID] = make(map[*websocket.Conn]bool)
	}
	g.clients[runID][conn] = true
	if g.metrics != nil {
		g.metrics.WSConnectionOpened()
	}
}

// removeClient 移除客户端连接，该 Run 没有其他连接时清理整个条目
func (g *EventGateway) removeClient(runID string, conn *websocket.Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if clients, ok := g.clients[runID]; ok {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(g.clients, runID)
		}
	}
	if g.metrics != nil {
		g.metrics.WSConnectionClosed()
	}
}

// ClientCount 返回指定 Run 的在线客户端数
func (g *EventGateway) ClientCount(runID string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients[runID])
}

// readPump 读取客户端消息
//
// 在独立 goroutine 中运行，处理客户端心跳并在连接关闭时取消上下文。
func (g *EventGateway) readPump(conn *websocket.Conn, sess *wsSession, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws.read.failed] error=%v", err)
			}
			return
		}

		var req map[string]interface{}
		if json.Unmarshal(msg, &req) == nil && req["type"] == "ping" {
			g.recordMessage("in", "ping")
			sess.writeJSON(map[string]string{"type": "pong"})
		}
	}
}

// writePumpStream Redis Streams 实时推送模式
//
// 先重放 from_seq 之后的历史事件，再订阅实时流。重放与订阅之间
// 落库的事件会丢失一个极小窗口，下一次调度决策事件或终态通知
// 会把客户端拉回最新状态。
func (g *EventGateway) writePumpStream(ctx context.Context, sess *wsSession, runID string, fromSeq int64) {
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	lastSeq, ok := g.replayHistory(ctx, sess, runID, fromSeq)
	if !ok {
		return
	}

	eventCh, err := g.bus.SubscribeRunEvents(ctx, runID)
	if err != nil {
		log.Printf("[ws.subscribe.failed] run_id=%s error=%v", runID, err)
		g.writePumpPolling(ctx, sess, runID, lastSeq)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if err := sess.writePing(); err != nil {
				return
			}
		case ev, ok := <-eventCh:
			if !ok {
				// 事件通道关闭，检查 Run 是否已进入终态
				g.pushRunStatus(ctx, sess, runID)
				return
			}

			if !g.pushEvent(sess, streamEventPayload(ev)) {
				return
			}

			// 收尾事件落库发生在 Run 状态写入之后，此时查到的状态已是终态
			if ev.Message == model.EventRunFinalized || ev.Message == model.EventTimeoutMarked {
				g.pushRunStatus(ctx, sess, runID)
				return
			}
		}
	}
}

// writePumpPolling 轮询降级模式
//
// 每 500ms 用偏移量分页查库推送新事件，Run 进入终态时发送状态
// 通知并退出。事件表只追加且按序返回，偏移量即已消费行数。
func (g *EventGateway) writePumpPolling(ctx context.Context, sess *wsSession, runID string, fromSeq int64) {
	ticker := time.NewTicker(wsPollInterval)
	pingTicker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer pingTicker.Stop()

	offset := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			if err := sess.writePing(); err != nil {
				return
			}
		case <-ticker.C:
			events, err := g.store.ListEventsByRun(ctx, runID, 100, offset)
			if err != nil {
				log.Printf("[ws.poll.failed] run_id=%s error=%v", runID, err)
				continue
			}

			for _, event := range events {
				offset++
				if event.ID <= fromSeq {
					continue
				}
				if !g.pushEvent(sess, storedEventPayload(event)) {
					return
				}
			}

			run, err := g.store.GetRun(ctx, runID)
			if err == nil && run.IsTerminal() {
				g.writeStatus(sess, run)
				return
			}
		}
	}
}

// replayHistory 推送 from_seq 之后的历史事件
//
// 返回已推送的最大事件序号（供降级轮询续传）；第二个返回值为
// false 表示连接已不可用。
func (g *EventGateway) replayHistory(ctx context.Context, sess *wsSession, runID string, fromSeq int64) (int64, bool) {
	events, err := g.store.ListEventsByRun(ctx, runID, wsReplayLimit, 0)
	if err != nil {
		// 重放失败不致命，继续实时流
		log.Printf("[ws.replay.failed] run_id=%s error=%v", runID, err)
		return fromSeq, true
	}

	lastSeq := fromSeq
	for _, event := range events {
		if event.ID <= fromSeq {
			continue
		}
		if !g.pushEvent(sess, storedEventPayload(event)) {
			return lastSeq, false
		}
		if event.ID > lastSeq {
			lastSeq = event.ID
		}
	}
	return lastSeq, true
}

// pushEvent 推送单条事件消息，返回 false 表示写失败
func (g *EventGateway) pushEvent(sess *wsSession, payload map[string]interface{}) bool {
	msg := map[string]interface{}{
		"type": "event",
		"data": payload,
	}
	if err := sess.writeJSON(msg); err != nil {
		log.Printf("[ws.write.failed] error=%v", err)
		return false
	}
	g.recordMessage("out", "event")
	return true
}

// pushRunStatus 查询 Run 状态，已进入终态时推送状态通知
func (g *EventGateway) pushRunStatus(ctx context.Context, sess *wsSession, runID string) {
	run, err := g.store.GetRun(ctx, runID)
	if err != nil || !run.IsTerminal() {
		return
	}
	g.writeStatus(sess, run)
}

// writeStatus 推送终态通知
func (g *EventGateway) writeStatus(sess *wsSession, run *model.Run) {
	sess.writeJSON(map[string]interface{}{
		"type": "status",
		"data": map[string]interface{}{
			"status":      run.Status,
			"finished_at": run.FinishedAt,
		},
	})
	g.recordMessage("out", "status")
}

// recordMessage 记录消息指标，指标未挂接时为空操作
func (g *EventGateway) recordMessage(direction, msgType string) {
	if g.metrics != nil {
		g.metrics.RecordWSMessage(direction, msgType)
	}
}

// storedEventPayload 把存储形态的事件转成推送格式
func storedEventPayload(event *model.Event) map[string]interface{} {
	payload := map[string]interface{}{
		"seq":       event.ID,
		"level":     event.Level,
		"message":   event.Message,
		"timestamp": event.CreatedAt,
	}
	if len(event.Details) > 0 {
		payload["details"] = event.Details
	}
	return payload
}

// streamEventPayload 把事件流形态的事件转成推送格式
func streamEventPayload(ev *eventbus.RunEvent) map[string]interface{} {
	payload := map[string]interface{}{
		"seq":       ev.Seq,
		"level":     ev.Level,
		"message":   ev.Message,
		"timestamp": ev.Timestamp,
	}
	if ev.Details != nil {
		payload["details"] = ev.Details
	}
	return payload
}
