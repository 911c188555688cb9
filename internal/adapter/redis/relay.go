package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/google/uuid"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	roomChannelPrefix = "fanpulse:room:"
	publishTimeout    = 2 * time.Second
	// originSeparator ends the publishing instance's id in front of every relayed payload.
	originSeparator = "\n"
)

// LocalRooms delivers a payload to this instance's subscribers of a room.
type LocalRooms interface {
	Broadcast(key domain.RoomKey, payload []byte)
}

// RemoteFunc observes payloads another instance published. It runs on the relay
// goroutine and must not block.
type RemoteFunc func(key domain.RoomKey, payload []byte)

// RoomRelay fans room payloads out across instances. Broadcast publishes to Redis; Run
// pattern-subscribes and hands every received payload to the local registry, so each
// subscriber, wherever it is connected, gets the payload once.
type RoomRelay struct {
	rdb      *goredis.Client
	local    LocalRooms
	metrics  *metrics.RedisMetrics
	origin   string
	onRemote RemoteFunc

	readyOnce sync.Once
	ready     chan struct{}
}

// RelayOption configures a RoomRelay.
type RelayOption func(*RoomRelay)

// WithRemoteFunc registers fn for payloads that originate on other instances.
func WithRemoteFunc(fn RemoteFunc) RelayOption {
	return func(r *RoomRelay) { r.onRemote = fn }
}

// NewRoomRelay creates a relay. redisMetrics may be nil.
func NewRoomRelay(rdb *goredis.Client, local LocalRooms, redisMetrics *metrics.RedisMetrics, opts ...RelayOption) *RoomRelay {
	r := &RoomRelay{
		rdb:     rdb,
		local:   local,
		metrics: redisMetrics,
		origin:  uuid.NewString(),
		ready:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func roomChannel(key domain.RoomKey) string {
	return roomChannelPrefix + key.String()
}

// Broadcast publishes payload for the room. If the publish certainly never reached
// Redis the payload is delivered to local subscribers only. If the outcome is unknown,
// e.g. on a timeout, it is dropped: Redis may still relay it back, and subscribers must
// not see it twice.
func (r *RoomRelay) Broadcast(key domain.RoomKey, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	framed := r.origin + originSeparator + string(payload)
	err := r.rdb.Publish(ctx, roomChannel(key), framed).Err()
	if err == nil {
		if r.metrics != nil {
			r.metrics.RelayPublished.Inc()
		}
		return
	}

	if !notPublished(err) {
		slog.Error("Room relay publish outcome unknown, dropping payload", "room", key.String(), "error", err)
		r.publishFailed("dropped")
		return
	}

	slog.Warn("Room relay publish failed, delivering locally", "room", key.String(), "error", err)
	r.publishFailed("local_fallback")
	r.local.Broadcast(key, payload)
}

func (r *RoomRelay) publishFailed(outcome string) {
	if r.metrics != nil {
		r.metrics.RelayPublishErrors.WithLabelValues(outcome).Inc()
	}
}

// notPublished reports whether err proves the command never reached Redis or was
// rejected by it.
func notPublished(err error) bool {
	if errors.Is(err, circuitbreaker.ErrOpen) || errors.Is(err, goredis.ErrClosed) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var redisErr goredis.Error
	return errors.As(err, &redisErr)
}

// Ready is closed once the subscription is active.
func (r *RoomRelay) Ready() <-chan struct{} {
	return r.ready
}

// Run consumes relayed payloads until ctx is cancelled.
func (r *RoomRelay) Run(ctx context.Context) error {
	pubsub := r.rdb.PSubscribe(ctx, roomChannelPrefix+"*")
	defer func() { _ = pubsub.Close() }()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to room channels: %w", err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	slog.Info("Room relay subscribed", "pattern", roomChannelPrefix+"*")

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *RoomRelay) deliver(msg *goredis.Message) {
	raw, ok := strings.CutPrefix(msg.Channel, roomChannelPrefix)
	if !ok {
		return
	}
	key, err := domain.ParseRoomKey(raw)
	if err != nil {
		slog.Warn("Room relay received message for invalid room", "channel", msg.Channel, "error", err)
		return
	}
	origin, payload, ok := strings.Cut(msg.Payload, originSeparator)
	if !ok {
		slog.Warn("Room relay received unframed message", "channel", msg.Channel)
		return
	}

	if r.metrics != nil {
		r.metrics.RelayReceived.Inc()
	}
	r.local.Broadcast(key, []byte(payload))
	if origin != r.origin && r.onRemote != nil {
		r.onRemote(key, []byte(payload))
	}
}
