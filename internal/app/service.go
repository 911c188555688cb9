package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/fanpulse/internal/domain"
	"github.com/pscheid92/fanpulse/internal/lifecycle"
	"github.com/pscheid92/fanpulse/internal/timeline"
)

// CommentStore is the comment graph. Mutations return only after persistence succeeded.
type CommentStore interface {
	Comments(ctx context.Context, ref domain.EventRef) ([]domain.Comment, error)
	AddComment(ctx context.Context, ref domain.EventRef, authorID, body string) (domain.Comment, error)
	AddReply(ctx context.Context, ref domain.EventRef, commentID, authorID, body string) (domain.Reply, error)
	ToggleLike(ctx context.Context, ref domain.EventRef, target domain.LikeTarget, userID string) (domain.LikeResult, error)
}

// Notifier fans committed changes out to room subscribers.
type Notifier interface {
	CommentAdded(ctx context.Context, ref domain.EventRef, comment domain.Comment, tempID string) error
	ReplyAdded(ctx context.Context, ref domain.EventRef, reply domain.Reply, tempID string) error
	LikeToggled(ctx context.Context, ref domain.EventRef, result domain.LikeResult) error
	StatusChanged(ctx context.Context, ref domain.EventRef, snapshot domain.StatusSnapshot) error
}

// Service is the application layer. It is the only component that references both the
// comment store and the dispatcher, which keeps "commit, then broadcast" in one place.
type Service struct {
	events    domain.EventRepository
	forums    domain.ForumRepository
	store     CommentStore
	notifier  Notifier
	lifecycle *lifecycle.Clock
	clock     clockwork.Clock
}

// NewService creates the application layer service.
func NewService(events domain.EventRepository, forums domain.ForumRepository, store CommentStore, notifier Notifier, lc *lifecycle.Clock, clock clockwork.Clock) *Service {
	return &Service{
		events:    events,
		forums:    forums,
		store:     store,
		notifier:  notifier,
		lifecycle: lc,
		clock:     clock,
	}
}

// Status resolves the event's lifecycle state at the current time.
func (s *Service) Status(ctx context.Context, ref domain.EventRef) (lifecycle.State, error) {
	event, err := s.events.GetEvent(ctx, ref)
	if err != nil {
		return lifecycle.State{}, err
	}
	return s.lifecycle.Resolve(*event, s.clock.Now())
}

// Comments returns the event's comment graph.
func (s *Service) Comments(ctx context.Context, ref domain.EventRef) ([]domain.Comment, error) {
	return s.store.Comments(ctx, ref)
}

// AddComment posts a comment and announces it to the event's room.
func (s *Service) AddComment(ctx context.Context, ref domain.EventRef, authorID, body, tempID string) (domain.Comment, error) {
	comment, err := s.store.AddComment(ctx, ref, authorID, body)
	if err != nil {
		return domain.Comment{}, err
	}

	if err := s.notifier.CommentAdded(ctx, ref, comment, tempID); err != nil {
		slog.WarnContext(ctx, "Failed to dispatch new comment", "event", ref.String(), "comment_id", comment.ID, "error", err)
	}
	return comment, nil
}

// AddReply posts a reply to a comment and announces it to the event's room.
func (s *Service) AddReply(ctx context.Context, ref domain.EventRef, commentID, authorID, body, tempID string) (domain.Reply, error) {
	reply, err := s.store.AddReply(ctx, ref, commentID, authorID, body)
	if err != nil {
		return domain.Reply{}, err
	}

	if err := s.notifier.ReplyAdded(ctx, ref, reply, tempID); err != nil {
		slog.WarnContext(ctx, "Failed to dispatch new reply", "event", ref.String(), "reply_id", reply.ID, "error", err)
	}
	return reply, nil
}

// ToggleLike flips the caller's like on a comment or reply and announces the new count.
func (s *Service) ToggleLike(ctx context.Context, ref domain.EventRef, target domain.LikeTarget, userID string) (domain.LikeResult, error) {
	result, err := s.store.ToggleLike(ctx, ref, target, userID)
	if err != nil {
		return domain.LikeResult{}, err
	}

	if err := s.notifier.LikeToggled(ctx, ref, result); err != nil {
		slog.WarnContext(ctx, "Failed to dispatch like update", "event", ref.String(), "comment_id", target.CommentID, "error", err)
	}
	return result, nil
}

// Timeline merges the forum's messages and predictions, keeping the newest limit items.
func (s *Service) Timeline(ctx context.Context, forumID string, limit int) ([]domain.TimelineItem, error) {
	messages, err := s.forums.ListMessages(ctx, forumID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forum messages: %w", err)
	}
	predictions, err := s.forums.ListPredictions(ctx, forumID)
	if err != nil {
		return nil, fmt.Errorf("failed to list forum predictions: %w", err)
	}
	return timeline.Window(timeline.Merge(messages, predictions), limit), nil
}
