package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/fanpulse/internal/domain"
)

type EventRepo struct {
	pool *pgxpool.Pool
}

var _ domain.EventRepository = (*EventRepo)(nil)

func NewEventRepo(pool *pgxpool.Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

const selectEvent = `
	SELECT title, scheduled_at, time_of_day, override
	FROM events
	WHERE kind = $1 AND id = $2`

func (r *EventRepo) GetEvent(ctx context.Context, ref domain.EventRef) (*domain.Event, error) {
	return getEvent(ctx, r.pool, ref)
}

// LoadEvent reads the event and its whole comment graph from one snapshot.
func (r *EventRepo) LoadEvent(ctx context.Context, ref domain.EventRef) (*domain.LoadedEvent, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin load transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	event, err := getEvent(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	comments, err := loadComments(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit load transaction: %w", err)
	}
	return &domain.LoadedEvent{Event: *event, Comments: comments}, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func getEvent(ctx context.Context, q querier, ref domain.EventRef) (*domain.Event, error) {
	event := domain.Event{Ref: ref}
	var override string
	err := q.QueryRow(ctx, selectEvent, string(ref.Kind), ref.ID).Scan(&event.Title, &event.ScheduledAt, &event.TimeOfDay, &override)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event %s: %w", ref, err)
	}
	event.ScheduledAt = event.ScheduledAt.UTC()
	event.Override = domain.ParseOverride(override)
	return &event, nil
}

func loadComments(ctx context.Context, q querier, ref domain.EventRef) ([]domain.Comment, error) {
	rows, err := q.Query(ctx, `
		SELECT id, author_id, body, created_at
		FROM comments
		WHERE event_kind = $1 AND event_id = $2
		ORDER BY created_at, id`, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	comments, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Comment, error) {
		c := domain.Comment{Event: ref, LikedBy: domain.NewLikeSet()}
		err := row.Scan(&c.ID, &c.AuthorID, &c.Body, &c.CreatedAt)
		c.CreatedAt = c.CreatedAt.UTC()
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan comments: %w", err)
	}

	byID := make(map[string]*domain.Comment, len(comments))
	for i := range comments {
		byID[comments[i].ID] = &comments[i]
	}

	rows, err = q.Query(ctx, `
		SELECT r.id, r.comment_id, r.author_id, r.body, r.created_at
		FROM replies r
		JOIN comments c ON c.id = r.comment_id
		WHERE c.event_kind = $1 AND c.event_id = $2
		ORDER BY r.created_at, r.id`, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	replies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Reply, error) {
		r := domain.Reply{LikedBy: domain.NewLikeSet()}
		err := row.Scan(&r.ID, &r.CommentID, &r.AuthorID, &r.Body, &r.CreatedAt)
		r.CreatedAt = r.CreatedAt.UTC()
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan replies: %w", err)
	}

	replyLikes, err := collectLikes(ctx, q, `
		SELECT l.reply_id, l.user_id
		FROM reply_likes l
		JOIN replies r ON r.id = l.reply_id
		JOIN comments c ON c.id = r.comment_id
		WHERE c.event_kind = $1 AND c.event_id = $2`, ref)
	if err != nil {
		return nil, err
	}
	for _, reply := range replies {
		for _, userID := range replyLikes[reply.ID] {
			reply.LikedBy[userID] = struct{}{}
		}
		if parent, ok := byID[reply.CommentID]; ok {
			parent.Replies = append(parent.Replies, reply)
		}
	}

	commentLikes, err := collectLikes(ctx, q, `
		SELECT l.comment_id, l.user_id
		FROM comment_likes l
		JOIN comments c ON c.id = l.comment_id
		WHERE c.event_kind = $1 AND c.event_id = $2`, ref)
	if err != nil {
		return nil, err
	}
	for id, users := range commentLikes {
		if c, ok := byID[id]; ok {
			for _, userID := range users {
				c.LikedBy[userID] = struct{}{}
			}
		}
	}

	return comments, nil
}

func collectLikes(ctx context.Context, q querier, sql string, ref domain.EventRef) (map[string][]string, error) {
	rows, err := q.Query(ctx, sql, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	defer rows.Close()

	likes := make(map[string][]string)
	for rows.Next() {
		var targetID, userID string
		if err := rows.Scan(&targetID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		likes[targetID] = append(likes[targetID], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read likes: %w", err)
	}
	return likes, nil
}

// UpsertEvent stores an event schedule. It exists for seeding; the service itself
// never writes events.
func (r *EventRepo) UpsertEvent(ctx context.Context, event domain.Event) error {
	override := event.Override
	if override == "" {
		override = domain.OverrideAuto
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO events (kind, id, title, scheduled_at, time_of_day, override)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (kind, id) DO UPDATE SET
			title = EXCLUDED.title,
			scheduled_at = EXCLUDED.scheduled_at,
			time_of_day = EXCLUDED.time_of_day,
			override = EXCLUDED.override`,
		string(event.Ref.Kind), event.Ref.ID, event.Title, event.ScheduledAt.UTC().Truncate(time.Microsecond), event.TimeOfDay, string(override))
	if err != nil {
		return fmt.Errorf("failed to upsert event %s: %w", event.Ref, err)
	}
	return nil
}
