package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/plumehq/plume/internal/database/postgres"
	"github.com/plumehq/plume/posts/models"
)

// postgresUserRepository implements UserRepository against the users table.
type postgresUserRepository struct {
	client *postgres.Client
}

// NewPostgresUserRepository creates the users-table repository.
func NewPostgresUserRepository(client *postgres.Client) UserRepository {
	return &postgresUserRepository{client: client}
}

// SetRendition points the icon or banner column at a post and returns the
// previous pointer in the same statement. The FOR UPDATE subquery pins the
// row so the read-back cannot race a concurrent update.
func (r *postgresUserRepository) SetRendition(ctx context.Context, userID int64, kind IconKind, id models.PostId) (*models.PostId, error) {
	var column string
	switch kind {
	case KindIcon:
		column = "icon"
	case KindBanner:
		column = "banner"
	default:
		return nil, fmt.Errorf("unknown rendition kind %q", kind)
	}

	query := fmt.Sprintf(`
		UPDATE users
		SET %[1]s = $2
		FROM (SELECT user_id, %[1]s AS previous FROM users WHERE user_id = $1 FOR UPDATE) old
		WHERE users.user_id = old.user_id
		RETURNING old.previous`, column)

	var previous *models.PostId
	err := sqlx.GetContext(ctx, postgres.Executor(ctx, r.client), &previous, query, userID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user %s: %w", column, err)
	}

	return previous, nil
}
