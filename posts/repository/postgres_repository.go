package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/plumehq/plume/internal/database/postgres"
	"github.com/plumehq/plume/posts/models"
)

// postgresRepository implements PostRepository using raw SQL queries
type postgresRepository struct {
	client *postgres.Client
}

// NewPostgresRepository creates a new PostgreSQL repository for posts
func NewPostgresRepository(client *postgres.Client) PostRepository {
	return &postgresRepository{client: client}
}

func (r *postgresRepository) executor(ctx context.Context) sqlx.ExtContext {
	return postgres.Executor(ctx, r.client)
}

// WithTransaction executes a function within a database transaction
func (r *postgresRepository) WithTransaction(ctx context.Context, fn func(context.Context) error) error {
	return postgres.WithTransaction(ctx, r.client, fn)
}

// Exists reports whether any post carries the id.
func (r *postgresRepository) Exists(ctx context.Context, id models.PostId) (bool, error) {
	var count int
	query := `SELECT count(1) FROM posts WHERE post_id = $1`
	if err := sqlx.GetContext(ctx, r.executor(ctx), &count, query, id); err != nil {
		return false, fmt.Errorf("failed to probe post id: %w", err)
	}
	return count > 0, nil
}

// CreateUnpublished inserts the user's unpublished slot. The partial unique
// index on (uploader_user_id, privacy_id) WHERE privacy_id = unpublished
// makes the insert a no-op when the slot already exists; the read-back
// returns whichever id holds the slot.
func (r *postgresRepository) CreateUnpublished(ctx context.Context, userID int64, id models.PostId) (models.PostId, error) {
	insert := `
		INSERT INTO posts (post_id, uploader_user_id, privacy_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (uploader_user_id, privacy_id) WHERE privacy_id = $3 DO NOTHING`

	ex := r.executor(ctx)
	if _, err := ex.ExecContext(ctx, insert, id, userID, models.PrivacyUnpublished.ID()); err != nil {
		return 0, fmt.Errorf("failed to insert unpublished post: %w", err)
	}

	var slot models.PostId
	readback := `SELECT post_id FROM posts WHERE uploader_user_id = $1 AND privacy_id = $2`
	if err := sqlx.GetContext(ctx, ex, &slot, readback, userID, models.PrivacyUnpublished.ID()); err != nil {
		return 0, fmt.Errorf("failed to read back unpublished post: %w", err)
	}

	return slot, nil
}

// CreateDraft inserts a draft with the provided columns.
func (r *postgresRepository) CreateDraft(ctx context.Context, draft *models.NewDraft) error {
	columns := []string{"post_id", "uploader_user_id", "privacy_id"}
	args := []interface{}{draft.PostID, draft.Uploader, models.PrivacyDraft.ID()}

	if draft.Title != nil {
		columns = append(columns, "title")
		args = append(args, *draft.Title)
	}
	if draft.Description != nil {
		columns = append(columns, "description")
		args = append(args, *draft.Description)
	}
	if draft.Rating != nil {
		columns = append(columns, "rating_id")
		args = append(args, draft.Rating.ID())
	}
	if draft.Parent != nil {
		columns = append(columns, "parent")
		args = append(args, *draft.Parent)
	}

	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		`INSERT INTO posts (%s) VALUES (%s)`,
		strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)

	if _, err := r.executor(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	return nil
}

// OwnFilename probes ownership for an upload and returns the current
// filename. A miss on the keyed read is followed by a bare existence probe
// so Forbidden and NotFound stay distinguishable.
func (r *postgresRepository) OwnFilename(ctx context.Context, userID int64, id models.PostId) (*string, error) {
	var filename *string
	query := `SELECT filename FROM posts WHERE post_id = $1 AND uploader_user_id = $2`
	err := sqlx.GetContext(ctx, r.executor(ctx), &filename, query, id, userID)
	if err == nil {
		return filename, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to probe post ownership: %w", err)
	}

	exists, err := r.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrNotOwner
	}
	return nil, ErrPostNotFound
}

// OwnPostState reads the privacy and rating names of the caller's own post.
func (r *postgresRepository) OwnPostState(ctx context.Context, userID int64, id models.PostId) (*OwnPostState, error) {
	var row struct {
		Privacy string `db:"privacy"`
		Rating  string `db:"rating"`
	}
	query := `
		SELECT privacy.name AS privacy, ratings.name AS rating
		FROM posts
			INNER JOIN privacy ON posts.privacy_id = privacy.privacy_id
			INNER JOIN ratings ON posts.rating_id = ratings.rating_id
		WHERE posts.uploader_user_id = $1 AND posts.post_id = $2`

	err := sqlx.GetContext(ctx, r.executor(ctx), &row, query, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to read post state: %w", err)
	}

	return &OwnPostState{
		Privacy: models.Privacy(row.Privacy),
		Rating:  models.Rating(row.Rating),
	}, nil
}

// UpdateMedia records the new blob's filename, media type, and dimensions.
func (r *postgresRepository) UpdateMedia(ctx context.Context, userID int64, id models.PostId, media *MediaUpdate) error {
	query := `
		UPDATE posts
		SET updated_on = NOW(), media_type_id = $1, filename = $2, width = $3, height = $4
		WHERE uploader_user_id = $5 AND post_id = $6`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		media.MediaTypeID, media.Filename, media.Width, media.Height, userID, id)
	if err != nil {
		return fmt.Errorf("failed to update post media: %w", err)
	}
	return requireRow(result)
}

// UpdateFields applies a dynamic metadata patch. The column list is built
// from the provided fields only; an empty Title or Description pointer
// clears the column to NULL.
func (r *postgresRepository) UpdateFields(ctx context.Context, userID int64, id models.PostId, patch *models.PostPatch) error {
	sets := []string{"updated_on = NOW()"}
	args := []interface{}{}
	arg := 1

	appendSet := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, arg))
		args = append(args, value)
		arg++
	}

	if patch.Title != nil {
		if *patch.Title == "" {
			sets = append(sets, "title = NULL")
		} else {
			appendSet("title", *patch.Title)
		}
	}
	if patch.Description != nil {
		if *patch.Description == "" {
			sets = append(sets, "description = NULL")
		} else {
			appendSet("description", *patch.Description)
		}
	}
	if patch.Rating != nil {
		appendSet("rating_id", patch.Rating.ID())
	}

	query := fmt.Sprintf(
		`UPDATE posts SET %s WHERE uploader_user_id = $%d AND post_id = $%d`,
		strings.Join(sets, ", "), arg, arg+1,
	)
	args = append(args, userID, id)

	result, err := r.executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update post metadata: %w", err)
	}
	return requireRow(result)
}

// SetPrivacy flips privacy_id on an already-published post.
func (r *postgresRepository) SetPrivacy(ctx context.Context, userID int64, id models.PostId, privacy models.Privacy) error {
	query := `
		UPDATE posts
		SET updated_on = NOW(), privacy_id = $1
		WHERE uploader_user_id = $2 AND post_id = $3`

	result, err := r.executor(ctx).ExecContext(ctx, query, privacy.ID(), userID, id)
	if err != nil {
		return fmt.Errorf("failed to update post privacy: %w", err)
	}
	return requireRow(result)
}

// PublishFirst seeds the uploader's self-upvote and the initial score row
// and flips the privacy in one statement. lib/pq forbids multi-statement
// prepared execs, so the three writes are CTE arms of a single statement
// and commit or roll back together even mid-statement.
func (r *postgresRepository) PublishFirst(ctx context.Context, userID int64, id models.PostId, privacy models.Privacy, seed *ScoreSeed) error {
	query := `
		WITH vote_seed AS (
			INSERT INTO post_votes (user_id, post_id, upvote, created_on, updated_on)
			VALUES ($1, $2, TRUE, NOW(), NOW())
			ON CONFLICT (user_id, post_id) DO UPDATE
				SET upvote = TRUE, updated_on = NOW()
		), score_seed AS (
			INSERT INTO post_scores (post_id, upvotes, downvotes, top, hot, best, controversial)
			VALUES ($2, 1, 0, 1, $3, $4, $5)
			ON CONFLICT (post_id) DO NOTHING
		)
		UPDATE posts
		SET created_on = NOW(), updated_on = NOW(), privacy_id = $6
		WHERE uploader_user_id = $1 AND post_id = $2`

	result, err := r.executor(ctx).ExecContext(ctx, query,
		userID, id, seed.Hot, seed.Best, seed.Controversial, privacy.ID())
	if err != nil {
		return fmt.Errorf("failed to publish post: %w", err)
	}
	return requireRow(result)
}

// FindByID fetches the denormalized projection regardless of uploader.
func (r *postgresRepository) FindByID(ctx context.Context, id models.PostId) (*models.Post, error) {
	var row models.PostRow
	query := `
		SELECT
			posts.post_id, posts.uploader_user_id, posts.title, posts.description,
			ratings.name AS rating, privacy.name AS privacy, posts.parent,
			posts.filename, posts.media_type_id, media_types.file_type,
			media_types.mime_type, posts.width, posts.height,
			posts.created_on, posts.updated_on
		FROM posts
			INNER JOIN privacy ON posts.privacy_id = privacy.privacy_id
			INNER JOIN ratings ON posts.rating_id = ratings.rating_id
			LEFT JOIN media_types ON posts.media_type_id = media_types.media_type_id
		WHERE posts.post_id = $1`

	err := sqlx.GetContext(ctx, r.executor(ctx), &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to find post: %w", err)
	}

	return row.Post(), nil
}

// requireRow converts a zero-row keyed write into ErrPostNotFound. The key
// always carries (uploader, post_id), so a miss means the post does not
// exist for this uploader.
func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPostNotFound
	}
	return nil
}
