package rooms

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/fanpulse/internal/adapter/metrics"
	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber records payloads; reject makes Send report a full queue.
type fakeSubscriber struct {
	id string

	mu       sync.Mutex
	received [][]byte
	reject   bool
	closed   int
}

func newFake(id string) *fakeSubscriber { return &fakeSubscriber{id: id} }

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(payload []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject {
		return false
	}
	f.received = append(f.received, payload)
	return true
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeSubscriber) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.received))
	for i, p := range f.received {
		out[i] = string(p)
	}
	return out
}

func (f *fakeSubscriber) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

var (
	match42 = domain.RoomKey{Kind: domain.RoomKindLiveMatch, ID: "42"}
	match43 = domain.RoomKey{Kind: domain.RoomKindLiveMatch, ID: "43"}
	group7  = domain.RoomKey{Kind: domain.RoomKindFanGroup, ID: "7"}
	forum9  = domain.RoomKey{Kind: domain.RoomKindForum, ID: "9"}
)

func newTestRegistry(t *testing.T, maxPerRoom int, hooks Hooks) *Registry {
	t.Helper()
	r := NewRegistry(clockwork.NewRealClock(), maxPerRoom, hooks, nil)
	t.Cleanup(r.Stop)
	return r
}

// flush waits until every previously queued command has been processed.
func flush(r *Registry) {
	r.subscriberCount(domain.RoomKey{})
}

func TestJoinAndBroadcast(t *testing.T) {
	r := newTestRegistry(t, 0, Hooks{})
	a, b := newFake("a"), newFake("b")

	require.NoError(t, r.Join(match42, a))
	require.NoError(t, r.Join(match42, b))
	assert.Equal(t, 2, r.subscriberCount(match42))

	r.Broadcast(match42, []byte("hello"))
	flush(r)

	assert.Equal(t, []string{"hello"}, a.messages())
	assert.Equal(t, []string{"hello"}, b.messages())
}

func TestBroadcast_OnlyReachesRoomMembers(t *testing.T) {
	r := newTestRegistry(t, 0, Hooks{})
	inMatch, inGroup := newFake("a"), newFake("b")

	require.NoError(t, r.Join(match42, inMatch))
	require.NoError(t, r.Join(group7, inGroup))

	r.Broadcast(group7, []byte("group-only"))
	r.Broadcast(forum9, []byte("nobody"))
	flush(r)

	assert.Empty(t, inMatch.messages())
	assert.Equal(t, []string{"group-only"}, inGroup.messages())
}

func TestJoin_Idempotent(t *testing.T) {
	opened := 0
	r := newTestRegistry(t, 0, Hooks{OnRoomOpened: func(domain.RoomKey) { opened++ }})
	a := newFake("a")

	require.NoError(t, r.Join(group7, a))
	require.NoError(t, r.Join(group7, a))

	assert.Equal(t, 1, r.subscriberCount(group7))
	assert.Equal(t, 1, opened)

	r.Broadcast(group7, []byte("once"))
	flush(r)
	assert.Equal(t, []string{"once"}, a.messages())
}

func TestJoin_ZeroKey(t *testing.T) {
	r := newTestRegistry(t, 0, Hooks{})
	err := r.Join(domain.RoomKey{}, newFake("a"))
	assert.ErrorIs(t, err, domain.ErrInvalidRoomKey)
}

func TestJoin_SecondLiveMatchLeavesFirst(t *testing.T) {
	r := newTestRegistry(t, 0, Hooks{})
	a := newFake("a")

	require.NoError(t, r.Join(match42, a))
	require.NoError(t, r.Join(group7, a))
	require.NoError(t, r.Join(forum9, a))
	require.NoError(t, r.Join(match43, a))

	assert.Equal(t, 0, r.subscriberCount(match42))
	assert.Equal(t, 1, r.subscriberCount(match43))
	assert.ElementsMatch(t, []domain.RoomKey{match43, group7, forum9}, r.membershipsOf("a"))
}

func TestLeave_Idempotent(t *testing.T) {
	r := newTestRegistry(t, 0, Hooks{})
	a, b := newFake("a"), newFake("b")
	require.NoError(t, r.Join(match42, a))
	require.NoError(t, r.Join(match42, b))

	r.Leave(match42, "a")
	r.Leave(match42, "a")
	r.Leave(forum9, "a")
	r.Leave(match42, "nobody")

	assert.Equal(t, 1, r.subscriberCount(match42))

	r.Broadcast(match42, []byte("after-leave"))
	flush(r)
	assert.Empty(t, a.messages())
	assert.Equal(t, []string{"after-leave"}, b.messages())
}

func TestHooks_OpenAndCloseOnFirstAndLastMember(t *testing.T) {
	var mu sync.Mutex
	var events []string
	record := func(prefix string) func(domain.RoomKey) {
		return func(key domain.RoomKey) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, prefix+" "+key.String())
		}
	}
	r := newTestRegistry(t, 0, Hooks{OnRoomOpened: record("open"), OnRoomClosed: record("close")})

	require.NoError(t, r.Join(match42, newFake("a")))
	require.NoError(t, r.Join(match42, newFake("b")))
	r.Leave(match42, "a")
	r.Leave(match42, "b")
	flush(r)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"open live-match-42", "close live-match-42"}, events)
}

func TestLeaveAll_RemovesFromEveryRoom(t *testing.T) {
	r := newTestRegistry(t, 0, Hooks{})
	a, b := newFake("a"), newFake("b")
	require.NoError(t, r.Join(match42, a))
	require.NoError(t, r.Join(group7, a))
	require.NoError(t, r.Join(forum9, a))
	require.NoError(t, r.Join(group7, b))

	r.LeaveAll("a")

	assert.Empty(t, r.membershipsOf("a"))
	assert.Equal(t, 0, r.subscriberCount(match42))
	assert.Equal(t, 1, r.subscriberCount(group7))
	assert.Equal(t, 0, a.closeCount(), "LeaveAll does not close the subscriber")
}

func TestBroadcast_DropsUnreachableSubscriber(t *testing.T) {
	reg := prometheus.NewRegistry()
	roomMetrics := metrics.NewRoomMetrics(reg)
	r := NewRegistry(clockwork.NewRealClock(), 0, Hooks{}, roomMetrics)
	t.Cleanup(r.Stop)

	slow, healthy := newFake("slow"), newFake("healthy")
	slow.reject = true
	require.NoError(t, r.Join(match42, slow))
	require.NoError(t, r.Join(group7, slow))
	require.NoError(t, r.Join(match42, healthy))

	r.Broadcast(match42, []byte("m1"))
	r.Broadcast(match42, []byte("m2"))
	flush(r)

	assert.Equal(t, []string{"m1", "m2"}, healthy.messages())
	assert.Empty(t, r.membershipsOf("slow"), "unreachable subscriber is treated as having left every room")
	assert.Equal(t, 1, slow.closeCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(roomMetrics.DeliveryFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(roomMetrics.Subscriptions))
}

func TestJoin_RoomFull(t *testing.T) {
	r := newTestRegistry(t, 2, Hooks{})
	require.NoError(t, r.Join(match42, newFake("a")))
	require.NoError(t, r.Join(match42, newFake("b")))

	err := r.Join(match42, newFake("c"))
	assert.ErrorIs(t, err, domain.ErrRoomFull)
	assert.Equal(t, 2, r.subscriberCount(match42))

	// Re-joining as an existing member is still fine.
	assert.NoError(t, r.Join(match42, newFake("a")))
}

func TestJoin_RoomFullKeepsPreviousLiveMatch(t *testing.T) {
	r := newTestRegistry(t, 1, Hooks{})
	require.NoError(t, r.Join(match43, newFake("other")))

	a := newFake("a")
	require.NoError(t, r.Join(match42, a))
	require.ErrorIs(t, r.Join(match43, a), domain.ErrRoomFull)

	assert.Equal(t, []domain.RoomKey{match42}, r.membershipsOf("a"))
}

func TestJoin_TimeoutLeavesNoMembership(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	r := NewRegistry(clock, 0, Hooks{OnRoomOpened: func(domain.RoomKey) { <-release }}, nil)
	t.Cleanup(r.Stop)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Join(match42, newFake("a")) }()

	// The depth ticker plus the join's command timer.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	clock.Advance(commandTimeout)

	require.ErrorContains(t, <-errCh, "timed out")
	close(release)

	assert.Equal(t, 0, r.subscriberCount(match42))
	assert.Empty(t, r.membershipsOf("a"))
}

func TestStop_ClosesSubscribersAndRejectsJoins(t *testing.T) {
	var closedRooms []domain.RoomKey
	r := NewRegistry(clockwork.NewRealClock(), 0, Hooks{OnRoomClosed: func(k domain.RoomKey) { closedRooms = append(closedRooms, k) }}, nil)

	a := newFake("a")
	require.NoError(t, r.Join(match42, a))
	require.NoError(t, r.Join(group7, a))

	r.Stop()
	r.Stop()

	assert.Equal(t, 1, a.closeCount())
	assert.ElementsMatch(t, []domain.RoomKey{match42, group7}, closedRooms)
	assert.ErrorIs(t, r.Join(forum9, newFake("b")), ErrStopped)
	assert.Equal(t, 0, r.subscriberCount(match42))

	// Fire-and-forget commands after stop must not block.
	r.Broadcast(match42, []byte("late"))
	r.Leave(match42, "a")
	r.LeaveAll("a")
}

func TestConcurrentJoinsAndBroadcasts(t *testing.T) {
	r := newTestRegistry(t, 0, Hooks{})
	const n = 50

	subs := make([]*fakeSubscriber, n)
	var wg sync.WaitGroup
	for i := range n {
		subs[i] = newFake(fmt.Sprintf("s%d", i))
		wg.Add(1)
		go func(s *fakeSubscriber) {
			defer wg.Done()
			assert.NoError(t, r.Join(forum9, s))
		}(subs[i])
	}
	wg.Wait()
	require.Equal(t, n, r.subscriberCount(forum9))

	r.Broadcast(forum9, []byte("all"))
	flush(r)
	for _, s := range subs {
		assert.Equal(t, []string{"all"}, s.messages())
	}
}
