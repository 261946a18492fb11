package repository

import (
	"context"
	"errors"

	"github.com/plumehq/plume/posts/models"
)

// Sentinel errors translated to HTTP error kinds at the service boundary.
var (
	// ErrPostNotFound means the post does not exist for this uploader.
	ErrPostNotFound = errors.New("post not found")

	// ErrNotOwner means the post exists but belongs to another uploader.
	// Only reads that confirm existence can report it.
	ErrNotOwner = errors.New("post belongs to another uploader")

	// ErrUserNotFound means the users row is absent.
	ErrUserNotFound = errors.New("user not found")
)

// OwnPostState is the privacy/rating pair a privacy transition reads before
// deciding what to write.
type OwnPostState struct {
	Privacy models.Privacy
	Rating  models.Rating
}

// ScoreSeed carries the computed score values of a first publish. The
// repository writes them together with the self-vote and the privacy flip
// in one atomic statement.
type ScoreSeed struct {
	Hot           float64
	Best          float64
	Controversial float64
}

// MediaUpdate is the column set recorded when a blob is attached.
type MediaUpdate struct {
	Filename    string
	MediaTypeID int
	Width       int
	Height      int
}

// PostRepository is the relational post store. Every write path is keyed by
// (uploader, post_id): the WHERE clause always carries both, so no
// cross-user mutation can happen at the SQL level. Mutating operations run
// against the transaction in the context when one is present.
type PostRepository interface {
	// WithTransaction runs fn inside a single transaction. The transaction
	// travels in the context; nested repository calls join it.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Exists reports whether any post carries the id. The generation loop
	// probes this until it draws a free id.
	Exists(ctx context.Context, id models.PostId) (bool, error)

	// CreateUnpublished inserts the user's unpublished slot, tolerating a
	// concurrent or earlier insert, and returns the slot's post id. Calling
	// it repeatedly returns the same id until the slot is published.
	CreateUnpublished(ctx context.Context, userID int64, id models.PostId) (models.PostId, error)

	// CreateDraft inserts a draft populated with the provided columns.
	CreateDraft(ctx context.Context, draft *models.NewDraft) error

	// OwnFilename is the upload ownership probe: it returns the current
	// filename (nil when no blob was uploaded yet) for the caller's own
	// post. ErrNotOwner when the post exists under another uploader,
	// ErrPostNotFound when it does not exist at all.
	OwnFilename(ctx context.Context, userID int64, id models.PostId) (*string, error)

	// OwnPostState reads the privacy and rating of the caller's own post.
	OwnPostState(ctx context.Context, userID int64, id models.PostId) (*OwnPostState, error)

	// UpdateMedia records filename, media type, and dimensions after an
	// upload, bumping updated_on.
	UpdateMedia(ctx context.Context, userID int64, id models.PostId, media *MediaUpdate) error

	// UpdateFields applies a dynamic metadata patch, bumping updated_on.
	UpdateFields(ctx context.Context, userID int64, id models.PostId, patch *models.PostPatch) error

	// SetPrivacy flips privacy_id on an already-published post.
	SetPrivacy(ctx context.Context, userID int64, id models.PostId, privacy models.Privacy) error

	// PublishFirst performs the first-publish write: the uploader's
	// self-upvote, the initial score row, and the privacy flip with
	// created_on set to now, all in one atomic statement.
	PublishFirst(ctx context.Context, userID int64, id models.PostId, privacy models.Privacy, seed *ScoreSeed) error

	// FindByID fetches the denormalized projection regardless of uploader.
	FindByID(ctx context.Context, id models.PostId) (*models.Post, error)
}

// IconKind selects which user rendition column an icon/banner update writes.
type IconKind string

const (
	KindIcon   IconKind = "icon"
	KindBanner IconKind = "banner"
)

// UserRepository writes the icon/banner pointers on the users table. User
// records themselves are owned by the user service; only these two columns
// belong to this service.
type UserRepository interface {
	// SetRendition points the user's icon or banner at a post and returns
	// the previously pointed-at post id (nil when none) for blob cleanup.
	SetRendition(ctx context.Context, userID int64, kind IconKind, id models.PostId) (*models.PostId, error)
}
