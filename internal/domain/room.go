package domain

import (
	"fmt"
	"strings"
)

// RoomKind namespaces room keys so presence in one kind never leaks into another.
type RoomKind string

const (
	RoomKindLiveMatch RoomKind = "live-match"
	RoomKindFanGroup  RoomKind = "fan-group"
	RoomKindForum     RoomKind = "forum"
)

var roomKinds = []RoomKind{RoomKindLiveMatch, RoomKindFanGroup, RoomKindForum}

// RoomKey identifies a room. Construct it with NewRoomKey, ParseRoomKey or RoomKeyFor.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

func NewRoomKey(kind RoomKind, id string) (RoomKey, error) {
	if id == "" {
		return RoomKey{}, fmt.Errorf("%w: empty id", ErrInvalidRoomKey)
	}
	for _, k := range roomKinds {
		if k == kind {
			return RoomKey{Kind: kind, ID: id}, nil
		}
	}
	return RoomKey{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidRoomKey, kind)
}

// ParseRoomKey parses the "<kind>-<id>" form used on the wire.
func ParseRoomKey(s string) (RoomKey, error) {
	for _, k := range roomKinds {
		if id, ok := strings.CutPrefix(s, string(k)+"-"); ok && id != "" {
			return RoomKey{Kind: k, ID: id}, nil
		}
	}
	return RoomKey{}, fmt.Errorf("%w: %q", ErrInvalidRoomKey, s)
}

func (k RoomKey) String() string {
	return string(k.Kind) + "-" + k.ID
}

func (k RoomKey) IsZero() bool { return k.Kind == "" }

// Live streams share the live-match room kind; their ids are tagged so they never
// collide with a match. Match ids that would look tagged are escaped.
const (
	streamTag = "stream:"
	matchTag  = "match:"
)

// RoomKeyFor maps an event to the room its updates are fanned out to.
// Distinct events always map to distinct rooms.
func RoomKeyFor(ref EventRef) RoomKey {
	switch ref.Kind {
	case EventKindHighlight:
		return RoomKey{Kind: RoomKindFanGroup, ID: ref.ID}
	case EventKindForum:
		return RoomKey{Kind: RoomKindForum, ID: ref.ID}
	case EventKindLiveStream:
		return RoomKey{Kind: RoomKindLiveMatch, ID: streamTag + ref.ID}
	default:
		id := ref.ID
		if strings.HasPrefix(id, streamTag) || strings.HasPrefix(id, matchTag) {
			id = matchTag + id
		}
		return RoomKey{Kind: RoomKindLiveMatch, ID: id}
	}
}

// EventRefFor reverses RoomKeyFor.
func EventRefFor(key RoomKey) EventRef {
	switch key.Kind {
	case RoomKindFanGroup:
		return EventRef{Kind: EventKindHighlight, ID: key.ID}
	case RoomKindForum:
		return EventRef{Kind: EventKindForum, ID: key.ID}
	default:
		if id, ok := strings.CutPrefix(key.ID, streamTag); ok {
			return EventRef{Kind: EventKindLiveStream, ID: id}
		}
		if id, ok := strings.CutPrefix(key.ID, matchTag); ok {
			return EventRef{Kind: EventKindMatch, ID: id}
		}
		return EventRef{Kind: EventKindMatch, ID: key.ID}
	}
}
