package views

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/GrainArc/RoadCollab/methods"
	"github.com/GrainArc/RoadCollab/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
)

// 协同编辑实时通道

const (
	writeWait       = 10 * time.Second
	pingPeriod      = 30 * time.Second
	outgoingBacklog = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要严格检查
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// CollabMessage 通道消息信封
type CollabMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type lockPayload struct {
	RoadID   string `json:"roadid"`
	Username string `json:"username,omitempty"`
}

// CollabHub 全部在线会话的登记表，同时充当锁事件广播器
// 锁事件在broker互斥锁内回调进来，因此广播顺序与处理顺序一致
type CollabHub struct {
	mu       sync.RWMutex
	sessions map[*CollabSession]bool
	broker   *services.LockBroker
}

func NewCollabHub() *CollabHub {
	hub := &CollabHub{
		sessions: make(map[*CollabSession]bool),
	}
	hub.broker = services.NewLockBroker(hub)
	return hub
}

// Broker 暴露给路由层做只读查询
func (h *CollabHub) Broker() *services.LockBroker {
	return h.broker
}

// RoadLocked 实现services.LockBroadcaster
func (h *CollabHub) RoadLocked(roadID, owner string) {
	h.broadcast("road-locked", lockPayload{RoadID: roadID, Username: owner}, nil)
}

func (h *CollabHub) RoadUnlocked(roadID string) {
	h.broadcast("road-unlocked", lockPayload{RoadID: roadID}, nil)
}

func (h *CollabHub) broadcast(event string, data interface{}, skip *CollabSession) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("broadcast marshal error: %v", err)
		return
	}
	msg := CollabMessage{Event: event, Data: payload}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for session := range h.sessions {
		if session == skip {
			continue
		}
		session.send(msg)
	}
}

func (h *CollabHub) register(session *CollabSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[session] = true
}

func (h *CollabHub) unregister(session *CollabSession) {
	h.mu.Lock()
	delete(h.sessions, session)
	h.mu.Unlock()

	// 断开即释放该会话持有的全部锁，避免要素卡死在锁定态
	session.lockMu.Lock()
	owned := make([]string, 0, len(session.owned))
	for roadID := range session.owned {
		owned = append(owned, roadID)
	}
	session.owned = make(map[string]bool)
	session.lockMu.Unlock()

	for _, roadID := range owned {
		h.broker.Unlock(roadID)
	}
}

// CollabSession 一条websocket连接对应的编辑会话
// 出站消息只入队，由writeLoop单独写socket，广播方永不等网络
type CollabSession struct {
	conn     *websocket.Conn
	hub      *CollabHub
	username string
	lockMu   sync.Mutex
	owned    map[string]bool
	outgoing chan CollabMessage
	ctx      context.Context
	cancel   context.CancelFunc
}

// send 非阻塞入队，队列保持先进先出，广播顺序即处理顺序
// 队列打满说明对端早已停读，直接判死该会话
func (s *CollabSession) send(msg CollabMessage) {
	select {
	case s.outgoing <- msg:
	default:
		log.Printf("Session %s not reading, dropping it", s.username)
		s.cancel()
	}
}

// writeLoop 本会话唯一的socket写方，心跳也走这里
// 退出时关连接，把阻塞在ReadJSON里的读循环一并解放
func (s *CollabSession) writeLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.outgoing:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				log.Printf("Failed to send %s: %v", msg.Event, err)
				s.cancel()
				return
			}
		case <-pingTicker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Ping failed: %v", err)
				s.cancel()
				return
			}
		}
	}
}

// Serve 升级到websocket并进入会话循环
func (h *CollabHub) Serve(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade to websocket: %v", err)
		return
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	session := &CollabSession{
		conn:     conn,
		hub:      h,
		username: username,
		owned:    make(map[string]bool),
		outgoing: make(chan CollabMessage, outgoingBacklog),
		ctx:      sessionCtx,
		cancel:   cancel,
	}
	h.register(session)
	go session.writeLoop()
	h.handleSession(session)
}

func (h *CollabHub) handleSession(session *CollabSession) {
	defer func() {
		session.cancel()
		h.unregister(session)
		session.conn.Close()
		log.Println("WebSocket session closed")
	}()

	for {
		select {
		case <-session.ctx.Done():
			return
		default:
		}

		var msg CollabMessage
		if err := session.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		switch msg.Event {
		case "request-locks":
			h.sendInitialLocks(session)
		case "road-lock":
			h.handleLock(session, msg.Data)
		case "road-unlock":
			h.handleUnlock(session, msg.Data)
		case "road-edit":
			h.handleEdit(session, msg.Data)
		default:
			log.Printf("Unknown event: %s", msg.Event)
		}
	}
}

func (h *CollabHub) sendInitialLocks(session *CollabSession) {
	snapshot := h.broker.Snapshot()
	payload, _ := json.Marshal(snapshot)
	session.send(CollabMessage{Event: "initial-locks", Data: payload})
}

func (h *CollabHub) handleLock(session *CollabSession, data json.RawMessage) {
	var payload lockPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoadID == "" {
		return
	}

	if err := h.broker.Lock(payload.RoadID, session.username); err != nil {
		// 锁冲突只回给请求方，不改变任何状态
		owner, _ := h.broker.Owner(payload.RoadID)
		rejected, _ := json.Marshal(lockPayload{RoadID: payload.RoadID, Username: owner})
		session.send(CollabMessage{Event: "lock-rejected", Data: rejected})
		return
	}

	session.lockMu.Lock()
	session.owned[payload.RoadID] = true
	session.lockMu.Unlock()
}

func (h *CollabHub) handleUnlock(session *CollabSession, data json.RawMessage) {
	var payload lockPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoadID == "" {
		return
	}

	// 只允许释放自己持有的锁
	owner, ok := h.broker.Owner(payload.RoadID)
	if !ok || owner != session.username {
		return
	}
	h.broker.Unlock(payload.RoadID)

	session.lockMu.Lock()
	delete(session.owned, payload.RoadID)
	session.lockMu.Unlock()
}

func (h *CollabHub) handleEdit(session *CollabSession, data json.RawMessage) {
	feature, err := geojson.UnmarshalFeature(data)
	if err != nil {
		log.Printf("Bad road-edit payload: %v", err)
		return
	}
	if methods.RoadID(feature) == "" {
		return
	}
	// 只做实时可视同步，不落库，未加载该要素的会话当作空操作
	h.broadcast("road-updated", feature, session)
}
