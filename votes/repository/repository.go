package repository

import (
	"context"
	"errors"

	postmodels "github.com/plumehq/plume/posts/models"
	"github.com/plumehq/plume/votes/models"
)

// ErrPostNotFound means the voted-on post does not exist.
var ErrPostNotFound = errors.New("post not found")

// VoteRepository is the vote and score store. Mutations join the
// transaction in the context when one is present.
type VoteRepository interface {
	// UpsertVote inserts or replaces the (user, post) vote row. A nil
	// upvote records a retraction.
	UpsertVote(ctx context.Context, userID int64, postID postmodels.PostId, upvote *bool) error

	// Aggregate recomputes the post's vote totals in a single query over
	// the posts ↔ votes left join, excluding retracted rows. ErrPostNotFound
	// when the post does not exist.
	Aggregate(ctx context.Context, postID postmodels.PostId) (*models.VoteAggregate, error)

	// UpsertScore writes the recomputed score row.
	UpsertScore(ctx context.Context, score *models.Score) error

	// GetScore reads the score row; nil when the post has never been scored.
	GetScore(ctx context.Context, postID postmodels.PostId) (*models.Score, error)
}
