package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/pscheid92/fanpulse/internal/lifecycle"
	"github.com/pscheid92/fanpulse/internal/platform/correlation"
	"github.com/pscheid92/fanpulse/internal/rooms"
)

const defaultTickInterval = 1 * time.Second

// StatusSource resolves an event's current lifecycle state.
type StatusSource interface {
	Status(ctx context.Context, ref domain.EventRef) (lifecycle.State, error)
}

// StatusNotifier pushes a status snapshot to the event's room.
type StatusNotifier interface {
	StatusChanged(ctx context.Context, ref domain.EventRef, snapshot domain.StatusSnapshot) error
}

// StatusTicker recomputes status and countdown for events whose rooms have local
// subscribers, and pushes a status-update whenever the snapshot changes.
type StatusTicker struct {
	source   StatusSource
	notifier StatusNotifier
	clock    clockwork.Clock
	interval time.Duration

	mu     sync.Mutex
	active map[domain.EventRef]*domain.StatusSnapshot
}

// NewStatusTicker creates a ticker. notifier should deliver to local subscribers only,
// since every instance runs its own ticker for the rooms it holds.
func NewStatusTicker(source StatusSource, notifier StatusNotifier, clock clockwork.Clock) *StatusTicker {
	return &StatusTicker{
		source:   source,
		notifier: notifier,
		clock:    clock,
		interval: defaultTickInterval,
		active:   make(map[domain.EventRef]*domain.StatusSnapshot),
	}
}

// Track registers an event for periodic status refresh. Forum threads have no schedule
// and are ignored.
func (t *StatusTicker) Track(ref domain.EventRef) {
	if ref.Kind == domain.EventKindForum {
		return
	}
	t.mu.Lock()
	t.active[ref] = nil
	t.mu.Unlock()
}

// Untrack stops refreshing the event.
func (t *StatusTicker) Untrack(ref domain.EventRef) {
	t.mu.Lock()
	delete(t.active, ref)
	t.mu.Unlock()
}

// Hooks ties tracking to room occupancy: an event is tracked while its room has subscribers.
func (t *StatusTicker) Hooks() rooms.Hooks {
	return rooms.Hooks{
		OnRoomOpened: func(key domain.RoomKey) { t.Track(domain.EventRefFor(key)) },
		OnRoomClosed: func(key domain.RoomKey) { t.Untrack(domain.EventRefFor(key)) },
	}
}

// Run starts the periodic refresh loop. It blocks until ctx is cancelled.
func (t *StatusTicker) Run(ctx context.Context) {
	ticker := t.clock.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			t.refresh(ctx)
		}
	}
}

func (t *StatusTicker) refresh(ctx context.Context) {
	t.mu.Lock()
	refs := make([]domain.EventRef, 0, len(t.active))
	for ref := range t.active {
		refs = append(refs, ref)
	}
	t.mu.Unlock()

	for _, ref := range refs {
		tickCtx := correlation.WithID(ctx, correlation.NewID())

		state, err := t.source.Status(tickCtx, ref)
		if errors.Is(err, domain.ErrEventNotFound) {
			slog.DebugContext(tickCtx, "Ticker: event not found, removing", "event", ref.String())
			t.Untrack(ref)
			continue
		}
		if err != nil {
			slog.WarnContext(tickCtx, "Ticker: status lookup failed", "event", ref.String(), "error", err)
			continue
		}

		snap := domain.StatusSnapshot{Status: string(state.Status), Countdown: state.Countdown}
		if !t.changed(ref, snap) {
			continue
		}

		if err := t.notifier.StatusChanged(tickCtx, ref, snap); err != nil {
			slog.WarnContext(tickCtx, "Ticker: publish failed", "event", ref.String(), "error", err)
			continue
		}
		slog.DebugContext(tickCtx, "Ticker: pushed status", "event", ref.String(), "status", snap.Status, "countdown", snap.Countdown)
	}
}

// changed records snap as the last pushed snapshot and reports whether it differs.
// Untracked events report false so a racing Untrack wins.
func (t *StatusTicker) changed(ref domain.EventRef, snap domain.StatusSnapshot) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, tracked := t.active[ref]
	if !tracked || (last != nil && *last == snap) {
		return false
	}
	t.active[ref] = &snap
	return true
}

func (t *StatusTicker) tracked(ref domain.EventRef) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[ref]
	return ok
}
