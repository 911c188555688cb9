package websocket

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/pscheid92/fanpulse/internal/platform/correlation"
	"github.com/pscheid92/fanpulse/internal/rooms"
)

// Rooms is the part of the room registry a connection drives.
type Rooms interface {
	Join(key domain.RoomKey, sub rooms.Subscriber) error
	Leave(key domain.RoomKey, subscriberID string)
	LeaveAll(subscriberID string)
}

// frame is a client → server control message: {"action":"join","room":"live-match-42"}.
type frame struct {
	Action string `json:"action"`
	Room   string `json:"room"`
}

// reply acknowledges a frame. Notifications use the domain envelope instead.
type reply struct {
	Type  string `json:"type"`
	Room  string `json:"room,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	actionJoin  = "join"
	actionLeave = "leave"
)

// Handler upgrades requests to websocket connections and serves join/leave frames.
type Handler struct {
	rooms    Rooms
	upgrader websocket.Upgrader
	clock    clockwork.Clock
	metrics  *metrics.RoomMetrics
	limiter  *ConnLimiter
}

type HandlerOption func(*Handler)

// WithConnLimiter refuses upgrades beyond the limiter's connection limits.
func WithConnLimiter(l *ConnLimiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// NewHandler creates the upgrade handler. roomMetrics may be nil.
func NewHandler(r Rooms, checkOrigin func(*http.Request) bool, clock clockwork.Clock, roomMetrics *metrics.RoomMetrics, opts ...HandlerOption) *Handler {
	h := &Handler{
		rooms: r,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clock:   clock,
		metrics: roomMetrics,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := correlation.ID(ctx); !ok {
		ctx = correlation.WithID(ctx, correlation.NewID())
	}

	if h.limiter != nil {
		ip := clientIP(r)
		release, reason, ok := h.limiter.Acquire(ip)
		if !ok {
			slog.WarnContext(ctx, "WebSocket connection refused", "ip", ip, "reason", string(reason))
			if h.metrics != nil {
				h.metrics.RejectedConns.WithLabelValues(string(reason)).Inc()
			}
			http.Error(w, "too many connections", http.StatusTooManyRequests)
			return
		}
		defer release()
	}

	connection, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(ctx, "WebSocket upgrade failed", "error", err)
		return
	}

	conn := newConn(connection, r.Header.Get("X-User-ID"), h.clock)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
		defer h.metrics.ActiveConnections.Dec()
	}
	slog.DebugContext(ctx, "WebSocket connected", "subscriber", conn.ID(), "user_id", conn.userID)

	defer func() {
		h.rooms.LeaveAll(conn.ID())
		conn.Close()
		conn.wait()
		slog.DebugContext(ctx, "WebSocket disconnected", "subscriber", conn.ID())
	}()

	for {
		_, data, err := connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.DebugContext(ctx, "WebSocket read failed", "subscriber", conn.ID(), "error", err)
			}
			return
		}
		h.handleFrame(conn, data)
	}
}

func (h *Handler) handleFrame(conn *Conn, data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		h.reply(conn, reply{Type: "error", Error: "malformed frame"})
		return
	}

	key, err := domain.ParseRoomKey(f.Room)
	if err != nil {
		h.reply(conn, reply{Type: "error", Room: f.Room, Error: "invalid room"})
		return
	}

	switch f.Action {
	case actionJoin:
		if err := h.rooms.Join(key, conn); err != nil {
			msg := "join failed"
			if errors.Is(err, domain.ErrRoomFull) {
				msg = "room is full"
			}
			h.reply(conn, reply{Type: "error", Room: f.Room, Error: msg})
			return
		}
		h.reply(conn, reply{Type: "joined", Room: key.String()})
	case actionLeave:
		h.rooms.Leave(key, conn.ID())
		h.reply(conn, reply{Type: "left", Room: key.String()})
	default:
		h.reply(conn, reply{Type: "error", Room: f.Room, Error: "unknown action"})
	}
}

func (h *Handler) reply(conn *Conn, r reply) {
	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	if !conn.Send(payload) {
		slog.Debug("Dropping control reply for saturated connection", "subscriber", conn.ID())
	}
}
