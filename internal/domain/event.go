package domain

import (
	"context"
	"fmt"
	"time"
)

// EventKind distinguishes the entities that carry a comment stream.
type EventKind string

const (
	EventKindMatch      EventKind = "match"
	EventKindHighlight  EventKind = "highlight"
	EventKindLiveStream EventKind = "live-stream"
	EventKindForum      EventKind = "forum"
)

// ParseEventKind converts a path segment to an EventKind.
func ParseEventKind(s string) (EventKind, error) {
	switch k := EventKind(s); k {
	case EventKindMatch, EventKindHighlight, EventKindLiveStream, EventKindForum:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEventKind, s)
	}
}

// EventRef identifies an event across kinds. IDs are opaque and only unique per kind.
type EventRef struct {
	Kind EventKind
	ID   string
}

func (r EventRef) String() string {
	return string(r.Kind) + "/" + r.ID
}

// Override replaces the legacy stored isLive flag. OverrideAuto defers to the clock.
type Override string

const (
	OverrideAuto           Override = "auto"
	OverrideForcedLive     Override = "forced-live"
	OverrideForcedFinished Override = "forced-finished"
)

// ParseOverride defaults unknown values to OverrideAuto.
func ParseOverride(s string) Override {
	switch Override(s) {
	case OverrideForcedLive:
		return OverrideForcedLive
	case OverrideForcedFinished:
		return OverrideForcedFinished
	default:
		return OverrideAuto
	}
}

// Event is the schedule part of a match, highlight, live stream or forum post.
type Event struct {
	Ref         EventRef
	Title       string
	ScheduledAt time.Time
	// TimeOfDay is an optional "HH:MM" applied to ScheduledAt's date.
	TimeOfDay string
	Override  Override
}

// LoadedEvent is an event together with its stored comment graph.
type LoadedEvent struct {
	Event    Event
	Comments []Comment
}

// EventRepository reads events from the document store.
type EventRepository interface {
	GetEvent(ctx context.Context, ref EventRef) (*Event, error)
	LoadEvent(ctx context.Context, ref EventRef) (*LoadedEvent, error)
}
