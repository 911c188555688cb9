// Package memory provides an in-process document store for development and tests.
// It satisfies the event, comment and forum repositories without any external service.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/pscheid92/fanpulse/internal/domain"
)

type eventDoc struct {
	event    domain.Event
	comments []domain.Comment
}

// Repository keeps events, their comment graphs and forum collections in memory.
type Repository struct {
	mu          sync.RWMutex
	events      map[domain.EventRef]*eventDoc
	messages    map[string][]domain.Message
	predictions map[string][]domain.Prediction
}

func NewRepository() *Repository {
	return &Repository{
		events:      make(map[domain.EventRef]*eventDoc),
		messages:    make(map[string][]domain.Message),
		predictions: make(map[string][]domain.Prediction),
	}
}

// PutEvent creates or replaces an event's schedule, keeping its comments.
func (r *Repository) PutEvent(event domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.events[event.Ref]; ok {
		doc.event = event
		return
	}
	r.events[event.Ref] = &eventDoc{event: event}
}

// AddMessage appends a chat message to a forum.
func (r *Repository) AddMessage(m domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[m.ForumID] = append(r.messages[m.ForumID], m)
}

// AddPrediction appends a prediction to a forum.
func (r *Repository) AddPrediction(p domain.Prediction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predictions[p.ForumID] = append(r.predictions[p.ForumID], p)
}

func (r *Repository) GetEvent(_ context.Context, ref domain.EventRef) (*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.events[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, ref)
	}
	event := doc.event
	return &event, nil
}

func (r *Repository) LoadEvent(_ context.Context, ref domain.EventRef) (*domain.LoadedEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.events[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, ref)
	}
	comments := make([]domain.Comment, len(doc.comments))
	for i, c := range doc.comments {
		comments[i] = c.Clone()
	}
	return &domain.LoadedEvent{Event: doc.event, Comments: comments}, nil
}

func (r *Repository) PersistComment(_ context.Context, comment domain.Comment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.events[comment.Event]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, comment.Event)
	}
	doc.comments = append(doc.comments, comment.Clone())
	return nil
}

func (r *Repository) PersistReply(_ context.Context, event domain.EventRef, reply domain.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.comment(event, reply.CommentID)
	if err != nil {
		return err
	}
	c.Replies = append(c.Replies, reply.Clone())
	return nil
}

func (r *Repository) PersistLike(_ context.Context, event domain.EventRef, target domain.LikeTarget, userID string, liked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.comment(event, target.CommentID)
	if err != nil {
		return err
	}

	likers := c.LikedBy
	if target.IsReply() {
		i := slices.IndexFunc(c.Replies, func(reply domain.Reply) bool { return reply.ID == target.ReplyID })
		if i < 0 {
			return fmt.Errorf("%w: %s", domain.ErrReplyNotFound, target.ReplyID)
		}
		if c.Replies[i].LikedBy == nil {
			c.Replies[i].LikedBy = domain.NewLikeSet()
		}
		likers = c.Replies[i].LikedBy
	} else if likers == nil {
		c.LikedBy = domain.NewLikeSet()
		likers = c.LikedBy
	}

	if liked {
		likers[userID] = struct{}{}
	} else {
		delete(likers, userID)
	}
	return nil
}

func (r *Repository) comment(event domain.EventRef, commentID string) (*domain.Comment, error) {
	doc, ok := r.events[event]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrEventNotFound, event)
	}
	for i := range doc.comments {
		if doc.comments[i].ID == commentID {
			return &doc.comments[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrCommentNotFound, commentID)
}

func (r *Repository) ListMessages(_ context.Context, forumID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.forumExists(forumID); err != nil {
		return nil, err
	}
	return slices.Clone(r.messages[forumID]), nil
}

func (r *Repository) ListPredictions(_ context.Context, forumID string) ([]domain.Prediction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if err := r.forumExists(forumID); err != nil {
		return nil, err
	}
	return slices.Clone(r.predictions[forumID]), nil
}

func (r *Repository) forumExists(forumID string) error {
	if _, ok := r.events[domain.EventRef{Kind: domain.EventKindForum, ID: forumID}]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrForumNotFound, forumID)
	}
	return nil
}

// Ping always succeeds; it lets the in-memory store stand in for a database health check.
func (r *Repository) Ping(context.Context) error { return nil }
