// Package dispatch turns committed comment-graph mutations into room notifications.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pscheid92/fanpulse/internal/domain"
)

// Broadcaster delivers a payload to every subscriber of a room. The local room
// registry and the Redis relay both satisfy it.
type Broadcaster interface {
	Broadcast(key domain.RoomKey, payload []byte)
}

// Dispatcher routes notifications to the room of the event they belong to. Callers
// invoke it only after the mutation has been persisted, and once per mutation.
type Dispatcher struct {
	rooms Broadcaster
}

func NewDispatcher(rooms Broadcaster) *Dispatcher {
	return &Dispatcher{rooms: rooms}
}

// CommentAdded announces a new top-level comment. tempID is the client's optimistic
// id and may be empty.
func (d *Dispatcher) CommentAdded(ctx context.Context, ref domain.EventRef, comment domain.Comment, tempID string) error {
	return d.dispatch(ctx, ref, domain.NotificationNewComment, domain.CommentCreated{Comment: comment, TempID: tempID})
}

// ReplyAdded announces a new reply.
func (d *Dispatcher) ReplyAdded(ctx context.Context, ref domain.EventRef, reply domain.Reply, tempID string) error {
	return d.dispatch(ctx, ref, domain.NotificationNewReply, domain.ReplyCreated{Reply: reply, TempID: tempID})
}

// LikeToggled announces the outcome of a like toggle on a comment or reply.
func (d *Dispatcher) LikeToggled(ctx context.Context, ref domain.EventRef, result domain.LikeResult) error {
	return d.dispatch(ctx, ref, domain.NotificationLikeUpdate, domain.LikeDelta{
		CommentID: result.Target.CommentID,
		ReplyID:   result.Target.ReplyID,
		UserID:    result.UserID,
		Liked:     result.Liked,
		Likes:     result.LikeCount,
		Version:   result.Version,
	})
}

// StatusChanged pushes the event's current lifecycle status and countdown.
func (d *Dispatcher) StatusChanged(ctx context.Context, ref domain.EventRef, snapshot domain.StatusSnapshot) error {
	return d.dispatch(ctx, ref, domain.NotificationStatusUpdate, snapshot)
}

func (d *Dispatcher) dispatch(ctx context.Context, ref domain.EventRef, typ domain.NotificationType, data any) error {
	payload, err := json.Marshal(domain.Notification{Type: typ, EventID: ref.ID, Data: data})
	if err != nil {
		return fmt.Errorf("failed to encode %s notification: %w", typ, err)
	}

	key := domain.RoomKeyFor(ref)
	d.rooms.Broadcast(key, payload)
	slog.DebugContext(ctx, "Notification dispatched", "type", string(typ), "room", key.String())
	return nil
}
