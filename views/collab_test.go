package views

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCollabServer(t *testing.T) (*CollabHub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewCollabHub()
	r := gin.New()
	r.GET("/ws", hub.Serve)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return hub, server
}

// dialCollab 建立连接并用request-locks握手，确保会话已注册
func dialCollab(t *testing.T, server *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	writeEvent(t, conn, "request-locks", nil)
	msg := readEvent(t, conn)
	require.Equal(t, "initial-locks", msg.Event)
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		payload, err := json.Marshal(data)
		require.NoError(t, err)
		raw = payload
	}
	require.NoError(t, conn.WriteJSON(CollabMessage{Event: event, Data: raw}))
}

func readEvent(t *testing.T, conn *websocket.Conn) CollabMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg CollabMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestLockBroadcastAndRejection(t *testing.T) {
	hub, server := newCollabServer(t)

	alice := dialCollab(t, server, "alice")
	bob := dialCollab(t, server, "bob")

	writeEvent(t, alice, "road-lock", lockPayload{RoadID: "R1"})

	// 锁定事件广播给所有会话，包括请求方
	msg := readEvent(t, bob)
	require.Equal(t, "road-locked", msg.Event)
	var locked lockPayload
	require.NoError(t, json.Unmarshal(msg.Data, &locked))
	assert.Equal(t, "R1", locked.RoadID)
	assert.Equal(t, "alice", locked.Username)

	msg = readEvent(t, alice)
	require.Equal(t, "road-locked", msg.Event)

	// 冲突只回给请求方，附当前持有者
	writeEvent(t, bob, "road-lock", lockPayload{RoadID: "R1"})
	msg = readEvent(t, bob)
	require.Equal(t, "lock-rejected", msg.Event)
	var rejected lockPayload
	require.NoError(t, json.Unmarshal(msg.Data, &rejected))
	assert.Equal(t, "alice", rejected.Username)

	owner, ok := hub.Broker().Owner("R1")
	require.True(t, ok)
	assert.Equal(t, "alice", owner)
}

func TestUnlockOnlyByOwner(t *testing.T) {
	hub, server := newCollabServer(t)

	alice := dialCollab(t, server, "alice")
	bob := dialCollab(t, server, "bob")

	writeEvent(t, alice, "road-lock", lockPayload{RoadID: "R1"})
	require.Equal(t, "road-locked", readEvent(t, bob).Event)

	// 非持有者的解锁请求被忽略
	writeEvent(t, bob, "road-unlock", lockPayload{RoadID: "R1"})
	writeEvent(t, alice, "road-unlock", lockPayload{RoadID: "R1"})

	msg := readEvent(t, bob)
	require.Equal(t, "road-unlocked", msg.Event)

	_, ok := hub.Broker().Owner("R1")
	assert.False(t, ok)
}

func TestInitialLocksSnapshot(t *testing.T) {
	hub, server := newCollabServer(t)
	require.NoError(t, hub.Broker().Lock("R9", "carol"))

	conn := dialCollab(t, server, "dave")

	// 握手里的initial-locks已在dialCollab消费，这里单独再取一次
	writeEvent(t, conn, "request-locks", nil)
	msg := readEvent(t, conn)
	require.Equal(t, "initial-locks", msg.Event)

	var snapshot map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &snapshot))
	assert.Equal(t, "carol", snapshot["R9"])
}

func TestEditBroadcastSkipsSender(t *testing.T) {
	_, server := newCollabServer(t)

	alice := dialCollab(t, server, "alice")
	bob := dialCollab(t, server, "bob")

	feature := geojson.NewFeature(orb.MultiLineString{{{0, 0}, {1, 1}}})
	feature.Properties = geojson.Properties{"roadid": "R1"}
	payload, err := feature.MarshalJSON()
	require.NoError(t, err)

	require.NoError(t, alice.WriteJSON(CollabMessage{Event: "road-edit", Data: payload}))

	msg := readEvent(t, bob)
	require.Equal(t, "road-updated", msg.Event)
	updated, err := geojson.UnmarshalFeature(msg.Data)
	require.NoError(t, err)
	assert.Equal(t, "R1", updated.Properties["roadid"])

	// 发送方不回显：用一次锁广播确认alice收到的下一条不是road-updated
	writeEvent(t, bob, "road-lock", lockPayload{RoadID: "R2"})
	msg = readEvent(t, alice)
	assert.Equal(t, "road-locked", msg.Event)
}

func TestDisconnectReleasesLocks(t *testing.T) {
	hub, server := newCollabServer(t)

	alice := dialCollab(t, server, "alice")
	bob := dialCollab(t, server, "bob")

	writeEvent(t, alice, "road-lock", lockPayload{RoadID: "R1"})
	require.Equal(t, "road-locked", readEvent(t, bob).Event)

	require.NoError(t, alice.Close())

	msg := readEvent(t, bob)
	require.Equal(t, "road-unlocked", msg.Event)
	var unlocked lockPayload
	require.NoError(t, json.Unmarshal(msg.Data, &unlocked))
	assert.Equal(t, "R1", unlocked.RoadID)

	_, ok := hub.Broker().Owner("R1")
	assert.False(t, ok)
}

// 单个停读的客户端不得拖住其他会话的锁处理
func TestStalledClientDoesNotBlockLocking(t *testing.T) {
	hub, server := newCollabServer(t)

	// stalled握手后不再读任何消息
	_ = dialCollab(t, server, "stalled")
	active := dialCollab(t, server, "active")

	feature := geojson.NewFeature(orb.MultiLineString{{{0, 0}, {1, 1}}})
	feature.Properties = geojson.Properties{
		"roadid": "R1",
		"pad":    strings.Repeat("x", 64*1024),
	}
	payload, err := feature.MarshalJSON()
	require.NoError(t, err)

	// 大报文灌满停读会话的出站队列与socket缓冲
	for i := 0; i < 400; i++ {
		require.NoError(t, active.WriteJSON(CollabMessage{Event: "road-edit", Data: payload}))
	}

	done := make(chan error, 1)
	go func() { done <- hub.Broker().Lock("RX", "active") }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("lock acquisition blocked by a stalled session")
	}

	owner, ok := hub.Broker().Owner("RX")
	require.True(t, ok)
	assert.Equal(t, "active", owner)
}

func TestServeRequiresUsername(t *testing.T) {
	_, server := newCollabServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
