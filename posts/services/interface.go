package services

import (
	"context"

	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/posts/models"
)

// UploadParams carries one multipart upload after the handler has pulled it
// apart: the target post, the client filename, the raw bytes, and the
// optional long-side resize.
type UploadParams struct {
	PostID    string
	Filename  string
	Data      []byte
	WebResize int
}

// PostService is the post lifecycle: slot/draft creation, metadata updates,
// privacy transitions, image uploads, and profile renditions.
type PostService interface {
	// CreatePost returns the caller's unpublished slot when the request is
	// empty, or inserts a populated draft otherwise.
	CreatePost(ctx context.Context, user *types.UserContext, req *models.CreateRequest) (models.PostId, error)

	// UploadImage attaches a processed image to the caller's own post and
	// uploads every rendition.
	UploadImage(ctx context.Context, user *types.UserContext, params *UploadParams) (*models.UploadResponse, error)

	// UpdatePost applies a metadata patch and, when requested, a privacy
	// transition, in one transaction.
	UpdatePost(ctx context.Context, user *types.UserContext, req *models.UpdateRequest) error

	// UpdatePrivacy runs a bare privacy transition.
	UpdatePrivacy(ctx context.Context, user *types.UserContext, req *models.PrivacyRequest) error

	// SetIcon crops a square region of the post's image into the caller's
	// profile icon.
	SetIcon(ctx context.Context, user *types.UserContext, req *models.IconRequest) error

	// SetBanner crops a 3:1 region of the post's image into the caller's
	// profile banner.
	SetBanner(ctx context.Context, user *types.UserContext, req *models.IconRequest) error
}
