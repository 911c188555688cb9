package dispatch

import (
	"encoding/json"
	"log/slog"

	"github.com/pscheid92/fanpulse/internal/domain"
)

// Invalidator drops locally cached state of an event.
type Invalidator interface {
	Invalidate(ref domain.EventRef)
}

// InvalidateOnRemote returns a handler for notifications relayed from other instances.
// Comment graph changes made elsewhere invalidate the event's local graph, so the next
// read or toggle here starts from the document store. Status updates are ignored.
func InvalidateOnRemote(inv Invalidator) func(key domain.RoomKey, payload []byte) {
	return func(key domain.RoomKey, payload []byte) {
		var envelope struct {
			Type domain.NotificationType `json:"type"`
		}
		if err := json.Unmarshal(payload, &envelope); err != nil {
			slog.Warn("Ignoring undecodable relayed notification", "room", key.String(), "error", err)
			return
		}

		switch envelope.Type {
		case domain.NotificationNewComment, domain.NotificationNewReply, domain.NotificationLikeUpdate:
			inv.Invalidate(domain.EventRefFor(key))
		}
	}
}
