package services

import (
	"context"
	"fmt"
	"time"

	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/pkg/log"
	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/posts/models"
	"github.com/plumehq/plume/posts/repository"
)

// UploadImage runs the upload pipeline end to end: local image processing,
// the ownership-checked metadata write, then the rendition uploads. The
// object store is only touched after the transaction commits, so a failed
// commit leaves no orphaned blobs under a new filename.
func (s *postService) UploadImage(ctx context.Context, user *types.UserContext, params *UploadParams) (*models.UploadResponse, error) {
	id, err := models.ParsePostId(params.PostID)
	if err != nil {
		return nil, httperr.BadRequest("invalid post_id: %v", err)
	}

	prep, err := s.pipeline.Prepare(params.Data, params.Filename, params.WebResize)
	if err != nil {
		return nil, err
	}
	defer prep.Cleanup()

	var previous *string
	err = s.posts.WithTransaction(ctx, func(txCtx context.Context) error {
		old, err := s.posts.OwnFilename(txCtx, user.UserID, id)
		if err != nil {
			return s.ownershipError(err)
		}
		previous = old

		media := &repository.MediaUpdate{
			Filename:    prep.Filename,
			MediaTypeID: prep.Type.MediaTypeID,
			Width:       prep.Width,
			Height:      prep.Height,
		}
		if err := s.posts.UpdateMedia(txCtx, user.UserID, id, media); err != nil {
			return s.ownershipError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	set, err := s.pipeline.UploadRenditions(ctx, id.String(), prep)
	if err != nil {
		return nil, httperr.Internal(err)
	}

	// Replacing an upload leaves the old original behind; renditions share
	// fixed names and were just overwritten.
	if previous != nil && *previous != prep.Filename {
		oldKey := fmt.Sprintf("%s/%s", id, *previous)
		if err := s.blobs.Delete(ctx, oldKey); err != nil {
			log.WarnWithContext(ctx, "failed to delete replaced blob %s: %v", oldKey, err)
		}
	}

	s.patchCachedPost(ctx, id, func(p *models.Post) {
		filename := prep.Filename
		p.Filename = &filename
		p.MediaType = &models.MediaType{
			ID:       prep.Type.MediaTypeID,
			FileType: prep.Type.Name,
			Mime:     prep.Type.Mime,
		}
		p.Size = &models.PostSize{Width: prep.Width, Height: prep.Height}
		p.UpdatedOn = time.Now().UTC()
	})

	return &models.UploadResponse{
		PostID:     id,
		URL:        set.Original,
		Thumbnails: set.Thumbnails,
	}, nil
}
