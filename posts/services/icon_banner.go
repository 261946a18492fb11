package services

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/plumehq/plume/images"
	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/pkg/log"
	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/posts/models"
	"github.com/plumehq/plume/posts/repository"
)

func (s *postService) SetIcon(ctx context.Context, user *types.UserContext, req *models.IconRequest) error {
	return s.setRendition(ctx, user, req, repository.KindIcon)
}

func (s *postService) SetBanner(ctx context.Context, user *types.UserContext, req *models.IconRequest) error {
	return s.setRendition(ctx, user, req, repository.KindBanner)
}

// setRendition crops a region of a post's image into the caller's profile
// icon or banner. The source image comes back through the CDN rather than
// the object store so the working set stays in edge caches.
func (s *postService) setRendition(ctx context.Context, user *types.UserContext, req *models.IconRequest, kind repository.IconKind) error {
	id, err := models.ParsePostId(req.PostID)
	if err != nil {
		return httperr.BadRequest("invalid post_id: %v", err)
	}
	coords := req.Coordinates
	if coords.Width <= 0 || coords.Height <= 0 {
		return httperr.BadRequest("crop dimensions must be positive")
	}
	switch kind {
	case repository.KindIcon:
		if coords.Width != coords.Height {
			return httperr.BadRequest("icon crop must be square")
		}
	case repository.KindBanner:
		if int(math.Round(float64(coords.Width)/3)) != coords.Height {
			return httperr.BadRequest("banner crop must have a 3:1 aspect ratio")
		}
	}

	// The post projection and the user record come from different services;
	// fetch them in parallel.
	var (
		post   *models.Post
		record *types.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := s.posts.FindByID(gctx, id)
		if errors.Is(err, repository.ErrPostNotFound) {
			return httperr.NotFound("post not found")
		}
		if err != nil {
			return httperr.Internal(err)
		}
		post = p
		return nil
	})
	g.Go(func() error {
		u, err := s.lookup.GetUser(gctx, user.UserID)
		if err != nil {
			return err
		}
		record = u
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if post.Filename == nil {
		return httperr.BadRequest("post has no image")
	}

	data, err := s.cdn.Fetch(ctx, fmt.Sprintf("%s/%s", id, *post.Filename))
	if err != nil {
		return err
	}
	img, err := images.Decode(data)
	if err != nil {
		return httperr.Internal(fmt.Errorf("failed to decode stored image: %w", err))
	}

	img = images.Crop(img, coords.Left, coords.Top, coords.Width, coords.Height)
	var dir string
	switch kind {
	case repository.KindIcon:
		dir = "icons"
		img = images.ResizeLongSide(img, s.images.IconSize)
	case repository.KindBanner:
		dir = "banners"
		img = images.FitWithin(img, s.images.BannerWidth, s.images.BannerHeight)
	}

	handle := strings.ToLower(record.Handle)
	if err := s.putRendition(ctx, id, dir, handle, img); err != nil {
		return err
	}

	previous, err := s.users.SetRendition(ctx, user.UserID, kind, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return httperr.NotFound("user not found")
	}
	if err != nil {
		return httperr.Internal(err)
	}

	if previous != nil && *previous != id {
		s.deleteRendition(ctx, *previous, dir, handle)
	}

	s.patchCachedUser(ctx, user.UserID, func(doc map[string]interface{}) {
		doc[string(kind)] = id.String()
	})
	return nil
}

// putRendition uploads the WebP and JPEG variants of a profile rendition.
func (s *postService) putRendition(ctx context.Context, id models.PostId, dir, handle string, img image.Image) error {
	webpData, err := images.EncodeWebP(img, s.images.Quality)
	if err != nil {
		return httperr.Internal(err)
	}
	jpgData, err := images.EncodeJPEG(img, s.images.Quality)
	if err != nil {
		return httperr.Internal(err)
	}

	webpKey := fmt.Sprintf("%s/%s/%s.webp", id, dir, handle)
	if err := s.blobs.Put(ctx, webpKey, "image/webp", webpData); err != nil {
		return httperr.Internal(err)
	}
	jpgKey := fmt.Sprintf("%s/%s/%s.jpg", id, dir, handle)
	if err := s.blobs.Put(ctx, jpgKey, "image/jpeg", jpgData); err != nil {
		return httperr.Internal(err)
	}
	return nil
}

// deleteRendition removes the rendition pair that hung off a previously
// pointed-at post. Failures are logged; the rows already moved on.
func (s *postService) deleteRendition(ctx context.Context, id models.PostId, dir, handle string) {
	for _, ext := range []string{"webp", "jpg"} {
		key := fmt.Sprintf("%s/%s/%s.%s", id, dir, handle, ext)
		if err := s.blobs.Delete(ctx, key); err != nil {
			log.WarnWithContext(ctx, "failed to delete replaced rendition %s: %v", key, err)
		}
	}
}
