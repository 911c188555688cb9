package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/fanpulse/internal/domain"
)

// ForumRepo reads the forum message and prediction collections. A forum exists when an
// event of kind forum with its id exists.
type ForumRepo struct {
	pool *pgxpool.Pool
}

var _ domain.ForumRepository = (*ForumRepo)(nil)

func NewForumRepo(pool *pgxpool.Pool) *ForumRepo {
	return &ForumRepo{pool: pool}
}

func (r *ForumRepo) ListMessages(ctx context.Context, forumID string) ([]domain.Message, error) {
	if err := r.requireForum(ctx, forumID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, forum_id, user_id, body, created_at
		FROM forum_messages
		WHERE forum_id = $1
		ORDER BY created_at, id`, forumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query forum messages: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Message, error) {
		var m domain.Message
		err := row.Scan(&m.ID, &m.ForumID, &m.UserID, &m.Body, &m.CreatedAt)
		m.CreatedAt = m.CreatedAt.UTC()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan forum messages: %w", err)
	}
	return messages, nil
}

func (r *ForumRepo) ListPredictions(ctx context.Context, forumID string) ([]domain.Prediction, error) {
	if err := r.requireForum(ctx, forumID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, forum_id, user_id, match_id, pick, created_at
		FROM forum_predictions
		WHERE forum_id = $1
		ORDER BY created_at, id`, forumID)
	if err != nil {
		return nil, fmt.Errorf("failed to query forum predictions: %w", err)
	}
	predictions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Prediction, error) {
		var p domain.Prediction
		err := row.Scan(&p.ID, &p.ForumID, &p.UserID, &p.MatchID, &p.Pick, &p.CreatedAt)
		p.CreatedAt = p.CreatedAt.UTC()
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan forum predictions: %w", err)
	}
	return predictions, nil
}

// AddMessage stores a forum message. Seeding only.
func (r *ForumRepo) AddMessage(ctx context.Context, m domain.Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO forum_messages (id, forum_id, user_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`, m.ID, m.ForumID, m.UserID, m.Body, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert forum message: %w", err)
	}
	return nil
}

// AddPrediction stores a forum prediction. Seeding only.
func (r *ForumRepo) AddPrediction(ctx context.Context, p domain.Prediction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO forum_predictions (id, forum_id, user_id, match_id, pick, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, p.ID, p.ForumID, p.UserID, p.MatchID, p.Pick, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert forum prediction: %w", err)
	}
	return nil
}

func (r *ForumRepo) requireForum(ctx context.Context, forumID string) error {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE kind = $1 AND id = $2)`,
		string(domain.EventKindForum), forumID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check forum: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrForumNotFound, forumID)
	}
	return nil
}
