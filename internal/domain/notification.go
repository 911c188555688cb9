package domain

import "encoding/json"

// NotificationType is the "type" field of a room broadcast.
type NotificationType string

const (
	NotificationNewComment   NotificationType = "new-comment"
	NotificationNewReply     NotificationType = "new-reply"
	NotificationLikeUpdate   NotificationType = "like-update"
	NotificationStatusUpdate NotificationType = "status-update"
)

// Notification is the JSON envelope pushed to room subscribers.
type Notification struct {
	Type    NotificationType `json:"type"`
	EventID string           `json:"eventId"`
	Data    any              `json:"data"`
}

// CommentCreated is the data of a new-comment notification. TempID echoes the
// client-generated id so an optimistic entry can be swapped for the stored one.
type CommentCreated struct {
	Comment
	TempID string
}

func (c CommentCreated) MarshalJSON() ([]byte, error) {
	w := c.Comment.wire()
	w.TempID = c.TempID
	return json.Marshal(w)
}

// ReplyCreated is the data of a new-reply notification.
type ReplyCreated struct {
	Reply
	TempID string
}

func (r ReplyCreated) MarshalJSON() ([]byte, error) {
	w := r.Reply.wire()
	w.TempID = r.TempID
	return json.Marshal(w)
}

// LikeDelta is the data of a like-update notification. Likes is an absolute count, so
// clients keep the highest Version per target and drop updates that arrive older.
type LikeDelta struct {
	CommentID string `json:"commentId"`
	ReplyID   string `json:"replyId,omitempty"`
	UserID    string `json:"userId"`
	Liked     bool   `json:"liked"`
	Likes     int    `json:"likes"`
	Version   uint64 `json:"version"`
}

// StatusSnapshot is the data of a status-update notification.
type StatusSnapshot struct {
	Status    string `json:"status"`
	Countdown string `json:"countdown"`
}
