package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/pscheid92/fanpulse/internal/rooms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var match42 = domain.RoomKey{Kind: domain.RoomKindLiveMatch, ID: "42"}

type testEnv struct {
	registry *rooms.Registry
	metrics  *metrics.RoomMetrics
	url      string
}

func newTestEnv(t *testing.T, maxPerRoom int, opts ...HandlerOption) *testEnv {
	t.Helper()
	roomMetrics := metrics.NewRoomMetrics(prometheus.NewRegistry())
	registry := rooms.NewRegistry(clockwork.NewRealClock(), maxPerRoom, rooms.Hooks{}, roomMetrics)

	handler := NewHandler(registry, func(*http.Request) bool { return true }, clockwork.NewRealClock(), roomMetrics, opts...)
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		server.Close()
		registry.Stop()
	})

	return &testEnv{
		registry: registry,
		metrics:  roomMetrics,
		url:      "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func (e *testEnv) dial(t *testing.T) *ws.Conn {
	t.Helper()
	conn, _, err := ws.DefaultDialer.Dial(e.url, http.Header{"X-User-ID": []string{"u1"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *ws.Conn, action, room string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(frame{Action: action, Room: room}))
}

func readReply(t *testing.T, conn *ws.Conn) reply {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var r reply
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func TestHandler_JoinReceivesBroadcasts(t *testing.T) {
	env := newTestEnv(t, 0)
	conn := env.dial(t)

	send(t, conn, actionJoin, "live-match-42")
	assert.Equal(t, reply{Type: "joined", Room: "live-match-42"}, readReply(t, conn))
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Subscriptions))

	payload, err := json.Marshal(domain.Notification{Type: domain.NotificationNewComment, EventID: "42", Data: map[string]string{"_id": "c1"}})
	require.NoError(t, err)
	env.registry.Broadcast(match42, payload)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"new-comment","eventId":"42","data":{"_id":"c1"}}`, string(got))
}

func TestHandler_Leave(t *testing.T) {
	env := newTestEnv(t, 0)
	conn := env.dial(t)

	send(t, conn, actionJoin, "forum-9")
	readReply(t, conn)
	send(t, conn, actionLeave, "forum-9")
	assert.Equal(t, reply{Type: "left", Room: "forum-9"}, readReply(t, conn))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.Subscriptions) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHandler_InvalidFrames(t *testing.T) {
	env := newTestEnv(t, 0)
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte("not json")))
	assert.Equal(t, reply{Type: "error", Error: "malformed frame"}, readReply(t, conn))

	send(t, conn, actionJoin, "stadium-1")
	assert.Equal(t, reply{Type: "error", Room: "stadium-1", Error: "invalid room"}, readReply(t, conn))

	send(t, conn, "subscribe", "forum-9")
	assert.Equal(t, reply{Type: "error", Room: "forum-9", Error: "unknown action"}, readReply(t, conn))
}

func TestHandler_RoomFull(t *testing.T) {
	env := newTestEnv(t, 1)
	first, second := env.dial(t), env.dial(t)

	send(t, first, actionJoin, "fan-group-7")
	assert.Equal(t, "joined", readReply(t, first).Type)

	send(t, second, actionJoin, "fan-group-7")
	assert.Equal(t, reply{Type: "error", Room: "fan-group-7", Error: "room is full"}, readReply(t, second))
}

func TestHandler_DisconnectLeavesAllRooms(t *testing.T) {
	env := newTestEnv(t, 0)
	conn := env.dial(t)

	send(t, conn, actionJoin, "live-match-42")
	readReply(t, conn)
	send(t, conn, actionJoin, "forum-9")
	readReply(t, conn)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.ActiveConnections))

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(env.metrics.Subscriptions) == 0 &&
			testutil.ToFloat64(env.metrics.ActiveConnections) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_ConnectionLimit(t *testing.T) {
	limiter := NewConnLimiter(LimitConfig{MaxPerIP: 1}, clockwork.NewRealClock())
	env := newTestEnv(t, 0, WithConnLimiter(limiter))
	first := env.dial(t)

	_, resp, err := ws.DefaultDialer.Dial(env.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.RejectedConns.WithLabelValues(string(RejectPerIP))))

	require.NoError(t, first.Close())
	assert.Eventually(t, func() bool {
		conns, _ := limiter.Active()
		return conns == 0
	}, 2*time.Second, 10*time.Millisecond, "slot is released on disconnect")
}

func TestConn_SendAfterCloseFails(t *testing.T) {
	closed := make(chan *Conn, 1)
	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := newConn(c, "u1", clockwork.NewRealClock())
		conn.Close()
		conn.wait()
		closed <- conn
	}))
	t.Cleanup(server.Close)

	client, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	select {
	case conn := <-closed:
		assert.False(t, conn.Send([]byte("late")))
		conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("server never upgraded the connection")
	}
}
