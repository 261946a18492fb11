package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/plumehq/plume/internal/database/postgres"
	postmodels "github.com/plumehq/plume/posts/models"
	"github.com/plumehq/plume/votes/models"
)

// postgresRepository implements VoteRepository using raw SQL queries
type postgresRepository struct {
	client *postgres.Client
}

// NewPostgresRepository creates a new PostgreSQL repository for votes
func NewPostgresRepository(client *postgres.Client) VoteRepository {
	return &postgresRepository{client: client}
}

func (r *postgresRepository) executor(ctx context.Context) sqlx.ExtContext {
	return postgres.Executor(ctx, r.client)
}

// UpsertVote inserts or replaces the vote row. Retractions keep the row
// with upvote = NULL so the primary key still records that the user voted.
func (r *postgresRepository) UpsertVote(ctx context.Context, userID int64, postID postmodels.PostId, upvote *bool) error {
	query := `
		INSERT INTO post_votes (user_id, post_id, upvote, created_on, updated_on)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id, post_id) DO UPDATE
			SET upvote = EXCLUDED.upvote, updated_on = NOW()`

	if _, err := r.executor(ctx).ExecContext(ctx, query, userID, postID, upvote); err != nil {
		return fmt.Errorf("failed to upsert vote: %w", err)
	}
	return nil
}

// Aggregate recomputes the post's totals in one query. COUNT(upvote) skips
// NULLs, so retracted votes drop out of both counts.
func (r *postgresRepository) Aggregate(ctx context.Context, postID postmodels.PostId) (*models.VoteAggregate, error) {
	var agg models.VoteAggregate
	query := `
		SELECT
			COUNT(post_votes.upvote) AS total,
			COALESCE(SUM(post_votes.upvote::int), 0) AS up,
			posts.created_on AS created_on
		FROM posts
			LEFT JOIN post_votes
				ON posts.post_id = post_votes.post_id
				AND post_votes.upvote IS NOT NULL
		WHERE posts.post_id = $1
		GROUP BY posts.post_id, posts.created_on`

	err := sqlx.GetContext(ctx, r.executor(ctx), &agg, query, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to aggregate votes: %w", err)
	}

	return &agg, nil
}

// UpsertScore writes the recomputed score row.
func (r *postgresRepository) UpsertScore(ctx context.Context, score *models.Score) error {
	query := `
		INSERT INTO post_scores (post_id, upvotes, downvotes, top, hot, best, controversial)
		VALUES (:post_id, :upvotes, :downvotes, :top, :hot, :best, :controversial)
		ON CONFLICT (post_id) DO UPDATE SET
			upvotes = EXCLUDED.upvotes,
			downvotes = EXCLUDED.downvotes,
			top = EXCLUDED.top,
			hot = EXCLUDED.hot,
			best = EXCLUDED.best,
			controversial = EXCLUDED.controversial`

	if _, err := sqlx.NamedExecContext(ctx, r.executor(ctx), query, score); err != nil {
		return fmt.Errorf("failed to upsert score: %w", err)
	}
	return nil
}

// GetScore reads the score row; nil means the post has never been scored.
func (r *postgresRepository) GetScore(ctx context.Context, postID postmodels.PostId) (*models.Score, error) {
	var score models.Score
	query := `
		SELECT post_id, upvotes, downvotes, top, hot, best, controversial
		FROM post_scores
		WHERE post_id = $1`

	err := sqlx.GetContext(ctx, r.executor(ctx), &score, query, postID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read score: %w", err)
	}

	return &score, nil
}
