package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/fanpulse/internal/domain"
)

type CommentRepo struct {
	pool *pgxpool.Pool
}

var _ domain.CommentRepository = (*CommentRepo)(nil)

func NewCommentRepo(pool *pgxpool.Pool) *CommentRepo {
	return &CommentRepo{pool: pool}
}

func (r *CommentRepo) PersistComment(ctx context.Context, comment domain.Comment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO comments (id, event_kind, event_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		comment.ID, string(comment.Event.Kind), comment.Event.ID, comment.AuthorID, comment.Body, comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

func (r *CommentRepo) PersistReply(ctx context.Context, _ domain.EventRef, reply domain.Reply) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO replies (id, comment_id, author_id, body, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		reply.ID, reply.CommentID, reply.AuthorID, reply.Body, reply.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reply: %w", err)
	}
	return nil
}

// PersistLike writes the desired like state. Both directions are idempotent.
func (r *CommentRepo) PersistLike(ctx context.Context, _ domain.EventRef, target domain.LikeTarget, userID string, liked bool) error {
	var sql string
	targetID := target.CommentID
	switch {
	case target.IsReply() && liked:
		sql = `INSERT INTO reply_likes (reply_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
		targetID = target.ReplyID
	case target.IsReply():
		sql = `DELETE FROM reply_likes WHERE reply_id = $1 AND user_id = $2`
		targetID = target.ReplyID
	case liked:
		sql = `INSERT INTO comment_likes (comment_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	default:
		sql = `DELETE FROM comment_likes WHERE comment_id = $1 AND user_id = $2`
	}

	if _, err := r.pool.Exec(ctx, sql, targetID, userID); err != nil {
		return fmt.Errorf("failed to persist like: %w", err)
	}
	return nil
}
