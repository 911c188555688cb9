package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Message is a forum chat message.
type Message struct {
	ID        string    `json:"_id"`
	ForumID   string    `json:"forumId"`
	UserID    string    `json:"userId"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Prediction is a fan's pick posted into a forum.
type Prediction struct {
	ID        string    `json:"_id"`
	ForumID   string    `json:"forumId"`
	UserID    string    `json:"userId"`
	MatchID   string    `json:"matchId"`
	Pick      string    `json:"prediction"`
	CreatedAt time.Time `json:"createdAt"`
}

type TimelineItemKind string

const (
	TimelineMessage    TimelineItemKind = "message"
	TimelinePrediction TimelineItemKind = "prediction"
)

// TimelineItem is a tagged union: exactly one of Message and Prediction is set,
// matching Kind.
type TimelineItem struct {
	Kind       TimelineItemKind
	Message    *Message
	Prediction *Prediction
}

func (i TimelineItem) CreatedAt() time.Time {
	if i.Kind == TimelineMessage {
		return i.Message.CreatedAt
	}
	return i.Prediction.CreatedAt
}

func (i TimelineItem) MarshalJSON() ([]byte, error) {
	var data any = i.Prediction
	if i.Kind == TimelineMessage {
		data = i.Message
	}
	return json.Marshal(struct {
		Type      TimelineItemKind `json:"type"`
		CreatedAt time.Time        `json:"createdAt"`
		Data      any              `json:"data"`
	}{i.Kind, i.CreatedAt(), data})
}

// ForumRepository reads the two independently updated forum collections.
type ForumRepository interface {
	ListMessages(ctx context.Context, forumID string) ([]Message, error)
	ListPredictions(ctx context.Context, forumID string) ([]Prediction, error)
}
