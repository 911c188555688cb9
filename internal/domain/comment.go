package domain

import (
	"context"
	"encoding/json"
	"slices"
	"time"
)

// LikeSet is the set of users who liked a comment or reply.
// The like count is always derived from it.
type LikeSet map[string]struct{}

func NewLikeSet(userIDs ...string) LikeSet {
	s := make(LikeSet, len(userIDs))
	for _, id := range userIDs {
		s[id] = struct{}{}
	}
	return s
}

func (s LikeSet) Has(userID string) bool {
	_, ok := s[userID]
	return ok
}

func (s LikeSet) Len() int { return len(s) }

// Members returns the user IDs in sorted order.
func (s LikeSet) Members() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s LikeSet) Clone() LikeSet {
	out := make(LikeSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Reply belongs to exactly one comment and does not nest further.
type Reply struct {
	ID        string
	CommentID string
	AuthorID  string
	Body      string
	LikedBy   LikeSet
	CreatedAt time.Time
}

func (r Reply) Likes() int { return r.LikedBy.Len() }

func (r Reply) Clone() Reply {
	r.LikedBy = r.LikedBy.Clone()
	return r
}

type replyJSON struct {
	ID        string    `json:"_id"`
	CommentID string    `json:"commentId"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Likes     int       `json:"likes"`
	LikedBy   []string  `json:"likedBy"`
	CreatedAt time.Time `json:"createdAt"`
	TempID    string    `json:"tempId,omitempty"`
}

func (r Reply) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

func (r Reply) wire() replyJSON {
	return replyJSON{
		ID:        r.ID,
		CommentID: r.CommentID,
		UserID:    r.AuthorID,
		Message:   r.Body,
		Likes:     r.Likes(),
		LikedBy:   r.LikedBy.Members(),
		CreatedAt: r.CreatedAt,
	}
}

// Comment is a top-level entry in an event's comment stream. Replies are kept in
// insertion order.
type Comment struct {
	ID        string
	Event     EventRef
	AuthorID  string
	Body      string
	LikedBy   LikeSet
	CreatedAt time.Time
	Replies   []Reply
}

func (c Comment) Likes() int { return c.LikedBy.Len() }

// Clone returns a deep copy safe to hand out of a lock.
func (c Comment) Clone() Comment {
	c.LikedBy = c.LikedBy.Clone()
	replies := make([]Reply, len(c.Replies))
	for i, r := range c.Replies {
		replies[i] = r.Clone()
	}
	c.Replies = replies
	return c
}

type commentJSON struct {
	ID        string    `json:"_id"`
	EventID   string    `json:"eventId"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Likes     int       `json:"likes"`
	LikedBy   []string  `json:"likedBy"`
	Replies   []Reply   `json:"replies"`
	CreatedAt time.Time `json:"createdAt"`
	TempID    string    `json:"tempId,omitempty"`
}

func (c Comment) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.wire())
}

func (c Comment) wire() commentJSON {
	replies := c.Replies
	if replies == nil {
		replies = []Reply{}
	}
	return commentJSON{
		ID:        c.ID,
		EventID:   c.Event.ID,
		UserID:    c.AuthorID,
		Message:   c.Body,
		Likes:     c.Likes(),
		LikedBy:   c.LikedBy.Members(),
		Replies:   replies,
		CreatedAt: c.CreatedAt,
	}
}

// LikeTarget addresses a comment, or one of its replies when ReplyID is set.
type LikeTarget struct {
	CommentID string
	ReplyID   string
}

func (t LikeTarget) IsReply() bool { return t.ReplyID != "" }

// LikeResult is the state of a like target after a toggle. Version increases with every
// applied toggle on the target; a count with a lower version than one already seen is stale.
type LikeResult struct {
	Target    LikeTarget
	UserID    string
	Liked     bool
	LikeCount int
	Version   uint64
}

// CommentRepository persists mutations synchronously before they become visible.
type CommentRepository interface {
	PersistComment(ctx context.Context, comment Comment) error
	PersistReply(ctx context.Context, event EventRef, reply Reply) error
	PersistLike(ctx context.Context, event EventRef, target LikeTarget, userID string, liked bool) error
}
