package rooms

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/domain"
)

const (
	commandTimeout     = 5 * time.Second
	commandChannelSize = 1024
	depthInterval      = 1 * time.Second
)

// ErrStopped is returned by Join once the registry has shut down.
var ErrStopped = errors.New("room registry stopped")

// Subscriber is one connected client. Send must not block: it reports false when the
// payload could not be queued, and the registry then treats the subscriber as gone.
type Subscriber interface {
	ID() string
	Send(payload []byte) bool
	Close()
}

type members map[string]Subscriber

// registryCmd is the command interface for the Registry actor.
type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type joinCmd struct {
	baseRegistryCmd
	key        domain.RoomKey
	subscriber Subscriber
	errCh      chan error
}

type leaveCmd struct {
	baseRegistryCmd
	key          domain.RoomKey
	subscriberID string
}

type leaveAllCmd struct {
	baseRegistryCmd
	subscriberID string
	doneCh       chan struct{}
}

type broadcastCmd struct {
	baseRegistryCmd
	key     domain.RoomKey
	payload []byte
}

type countCmd struct {
	baseRegistryCmd
	key     domain.RoomKey
	replyCh chan int
}

type roomsOfCmd struct {
	baseRegistryCmd
	subscriberID string
	replyCh      chan []domain.RoomKey
}

type stopCmd struct {
	baseRegistryCmd
}

// Hooks are called from the registry goroutine and must not call back into the registry.
type Hooks struct {
	// OnRoomOpened runs when a room gets its first subscriber.
	OnRoomOpened func(key domain.RoomKey)
	// OnRoomClosed runs when a room loses its last subscriber.
	OnRoomClosed func(key domain.RoomKey)
}

// Registry maps room keys to their current subscribers. A single goroutine owns all
// state; the public methods only enqueue commands, so a broadcast never observes a
// half-applied join or leave.
type Registry struct {
	cmdCh      chan registryCmd
	done       chan struct{}
	clock      clockwork.Clock
	metrics    *metrics.RoomMetrics
	hooks      Hooks
	maxPerRoom int

	rooms         map[domain.RoomKey]members
	memberships   map[string]map[domain.RoomKey]struct{}
	subscriptions int
}

// NewRegistry starts the registry goroutine. maxPerRoom <= 0 means unlimited;
// roomMetrics may be nil.
func NewRegistry(clock clockwork.Clock, maxPerRoom int, hooks Hooks, roomMetrics *metrics.RoomMetrics) *Registry {
	r := &Registry{
		cmdCh:       make(chan registryCmd, commandChannelSize),
		done:        make(chan struct{}),
		clock:       clock,
		metrics:     roomMetrics,
		hooks:       hooks,
		maxPerRoom:  maxPerRoom,
		rooms:       make(map[domain.RoomKey]members),
		memberships: make(map[string]map[domain.RoomKey]struct{}),
	}
	go r.run()
	return r
}

// Join adds the subscriber to the room, creating it if needed. Re-joining is a no-op.
// Joining a live-match room moves the subscriber out of any other live-match room.
func (r *Registry) Join(key domain.RoomKey, sub Subscriber) error {
	if key.IsZero() {
		return fmt.Errorf("%w: zero key", domain.ErrInvalidRoomKey)
	}

	errCh := make(chan error, 1)
	if !r.send(joinCmd{key: key, subscriber: sub, errCh: errCh}) {
		return ErrStopped
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		// The queued join still runs later; undo it so a failed join leaves no membership.
		r.send(leaveCmd{key: key, subscriberID: sub.ID()})
		return fmt.Errorf("join command timed out after %v", commandTimeout)
	case <-r.done:
		return ErrStopped
	}
}

// Leave removes the subscriber from the room. Unknown rooms or subscribers are ignored.
func (r *Registry) Leave(key domain.RoomKey, subscriberID string) {
	r.send(leaveCmd{key: key, subscriberID: subscriberID})
}

// LeaveAll removes the subscriber from every room and waits until that happened.
// Connection handlers call it on disconnect.
func (r *Registry) LeaveAll(subscriberID string) {
	doneCh := make(chan struct{})
	if !r.send(leaveAllCmd{subscriberID: subscriberID, doneCh: doneCh}) {
		return
	}
	select {
	case <-doneCh:
	case <-r.done:
	}
}

// Broadcast queues payload for every current subscriber of the room. Delivery is
// best-effort; nothing is reported back.
func (r *Registry) Broadcast(key domain.RoomKey, payload []byte) {
	r.send(broadcastCmd{key: key, payload: payload})
}

// subscriberCount returns the number of subscribers in the room, or -1 on timeout.
func (r *Registry) subscriberCount(key domain.RoomKey) int {
	replyCh := make(chan int, 1)
	if !r.send(countCmd{key: key, replyCh: replyCh}) {
		return 0
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-replyCh:
		return n
	case <-timer.Chan():
		slog.Warn("Subscriber count timed out", "room", key.String(), "timeout", commandTimeout)
		return -1
	case <-r.done:
		return 0
	}
}

// membershipsOf lists the rooms the subscriber is currently in.
func (r *Registry) membershipsOf(subscriberID string) []domain.RoomKey {
	replyCh := make(chan []domain.RoomKey, 1)
	if !r.send(roomsOfCmd{subscriberID: subscriberID, replyCh: replyCh}) {
		return nil
	}
	select {
	case keys := <-replyCh:
		return keys
	case <-r.done:
		return nil
	}
}

// Stop closes every subscriber and ends the registry goroutine.
func (r *Registry) Stop() {
	if r.send(stopCmd{}) {
		<-r.done
	}
}

func (r *Registry) send(cmd registryCmd) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

func (r *Registry) run() {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Room registry panic recovered", "panic", rec)
			r.closeAll()
		}
	}()

	depthTicker := r.clock.NewTicker(depthInterval)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			if r.metrics != nil {
				r.metrics.CommandDepth.Set(float64(len(r.cmdCh)))
			}
		case cmd := <-r.cmdCh:
			switch c := cmd.(type) {
			case joinCmd:
				c.errCh <- r.handleJoin(c.key, c.subscriber)
			case leaveCmd:
				r.handleLeave(c.key, c.subscriberID)
			case leaveAllCmd:
				r.handleLeaveAll(c.subscriberID)
				close(c.doneCh)
			case broadcastCmd:
				r.handleBroadcast(c.key, c.payload)
			case countCmd:
				c.replyCh <- len(r.rooms[c.key])
			case roomsOfCmd:
				c.replyCh <- r.roomsOf(c.subscriberID)
			case stopCmd:
				r.closeAll()
				return
			default:
				slog.Warn("Room registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (r *Registry) handleJoin(key domain.RoomKey, sub Subscriber) error {
	id := sub.ID()
	room, exists := r.rooms[key]
	if exists {
		if _, already := room[id]; already {
			return nil
		}
	}

	if r.maxPerRoom > 0 && len(room) >= r.maxPerRoom {
		slog.Warn("Rejecting join: room is full", "room", key.String(), "max_subscribers", r.maxPerRoom)
		if r.metrics != nil {
			r.metrics.RejectedJoins.Inc()
		}
		return fmt.Errorf("%w: %s", domain.ErrRoomFull, key)
	}

	if key.Kind == domain.RoomKindLiveMatch {
		for other := range r.memberships[id] {
			if other.Kind == domain.RoomKindLiveMatch {
				r.handleLeave(other, id)
			}
		}
	}

	if !exists {
		room = make(members)
		r.rooms[key] = room
		if r.hooks.OnRoomOpened != nil {
			r.hooks.OnRoomOpened(key)
		}
	}
	room[id] = sub

	joined, ok := r.memberships[id]
	if !ok {
		joined = make(map[domain.RoomKey]struct{})
		r.memberships[id] = joined
	}
	joined[key] = struct{}{}
	r.subscriptions++

	r.updateGauges()
	slog.Debug("Subscriber joined room", "room", key.String(), "subscriber", id, "subscribers", len(room))
	return nil
}

func (r *Registry) handleLeave(key domain.RoomKey, id string) {
	room, ok := r.rooms[key]
	if !ok {
		return
	}
	if _, ok := room[id]; !ok {
		return
	}

	delete(room, id)
	r.subscriptions--
	if joined, ok := r.memberships[id]; ok {
		delete(joined, key)
		if len(joined) == 0 {
			delete(r.memberships, id)
		}
	}

	if len(room) == 0 {
		delete(r.rooms, key)
		if r.hooks.OnRoomClosed != nil {
			r.hooks.OnRoomClosed(key)
		}
		slog.Debug("Room closed", "room", key.String())
	}
	r.updateGauges()
}

func (r *Registry) handleLeaveAll(id string) {
	for key := range r.memberships[id] {
		r.handleLeave(key, id)
	}
}

func (r *Registry) handleBroadcast(key domain.RoomKey, payload []byte) {
	room, ok := r.rooms[key]
	if !ok {
		return
	}
	if r.metrics != nil {
		r.metrics.Broadcasts.WithLabelValues(string(key.Kind)).Inc()
	}

	var unreachable []Subscriber
	for _, sub := range room {
		if !sub.Send(payload) {
			unreachable = append(unreachable, sub)
		}
	}

	for _, sub := range unreachable {
		slog.Warn("Delivery failed, dropping subscriber", "room", key.String(), "subscriber", sub.ID())
		if r.metrics != nil {
			r.metrics.DeliveryFailures.Inc()
		}
		r.handleLeaveAll(sub.ID())
		sub.Close()
	}
}

func (r *Registry) roomsOf(id string) []domain.RoomKey {
	keys := make([]domain.RoomKey, 0, len(r.memberships[id]))
	for key := range r.memberships[id] {
		keys = append(keys, key)
	}
	return keys
}

func (r *Registry) closeAll() {
	closed := make(map[string]struct{})
	for key, room := range r.rooms {
		for id, sub := range room {
			if _, ok := closed[id]; !ok {
				sub.Close()
				closed[id] = struct{}{}
			}
		}
		delete(r.rooms, key)
		if r.hooks.OnRoomClosed != nil {
			r.hooks.OnRoomClosed(key)
		}
	}
	clear(r.memberships)
	r.subscriptions = 0
	r.updateGauges()
	slog.Info("Room registry shut down", "closed_subscribers", len(closed))
}

func (r *Registry) updateGauges() {
	if r.metrics == nil {
		return
	}
	r.metrics.ActiveRooms.Set(float64(len(r.rooms)))
	r.metrics.Subscriptions.Set(float64(r.subscriptions))
}
