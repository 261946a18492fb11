package services

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/plumehq/plume/counters"
	"github.com/plumehq/plume/internal/cache"
	"github.com/plumehq/plume/internal/clients"
	"github.com/plumehq/plume/internal/httperr"
	platformconfig "github.com/plumehq/plume/internal/platform/config"
	"github.com/plumehq/plume/internal/types"
	"github.com/plumehq/plume/posts/models"
	"github.com/plumehq/plume/posts/repository"
	"github.com/plumehq/plume/storage/provider"
	"github.com/plumehq/plume/votes/scoring"

	"github.com/plumehq/plume/images"
)

// idAttempts bounds the random draw loop for new post ids.
const idAttempts = 16

type postService struct {
	posts    repository.PostRepository
	users    repository.UserRepository
	blobs    provider.BlobProvider
	pipeline *images.Pipeline
	tags     clients.TagLookup
	lookup   clients.UserLookup
	cdn      clients.BlobFetcher
	cache    cache.Cache
	counters *counters.Pool
	images   platformconfig.ImagesConfig
}

// NewPostService wires the post lifecycle service.
func NewPostService(
	posts repository.PostRepository,
	users repository.UserRepository,
	blobs provider.BlobProvider,
	pipeline *images.Pipeline,
	tags clients.TagLookup,
	lookup clients.UserLookup,
	cdn clients.BlobFetcher,
	cacheService cache.Cache,
	pool *counters.Pool,
	imagesCfg platformconfig.ImagesConfig,
) PostService {
	return &postService{
		posts:    posts,
		users:    users,
		blobs:    blobs,
		pipeline: pipeline,
		tags:     tags,
		lookup:   lookup,
		cdn:      cdn,
		cache:    cacheService,
		counters: pool,
		images:   imagesCfg,
	}
}

func (s *postService) CreatePost(ctx context.Context, user *types.UserContext, req *models.CreateRequest) (models.PostId, error) {
	if req.Empty() {
		// The unpublished slot: at most one per user, returned as-is when it
		// already exists.
		id, err := s.generatePostId(ctx)
		if err != nil {
			return 0, err
		}
		slot, err := s.posts.CreateUnpublished(ctx, user.UserID, id)
		if err != nil {
			return 0, httperr.Internal(err)
		}
		return slot, nil
	}

	draft := &models.NewDraft{Uploader: user.UserID}

	if req.Title != nil {
		// Bounds are characters, not bytes: the columns count characters.
		if utf8.RuneCountInString(*req.Title) > models.MaxTitleLength {
			return 0, httperr.BadRequest("title exceeds %d characters", models.MaxTitleLength)
		}
		draft.Title = req.Title
	}
	if req.Description != nil {
		if utf8.RuneCountInString(*req.Description) > models.MaxDescriptionLength {
			return 0, httperr.BadRequest("description exceeds %d characters", models.MaxDescriptionLength)
		}
		draft.Description = req.Description
	}
	if req.Rating != nil {
		rating, err := models.ParseRating(*req.Rating)
		if err != nil {
			return 0, httperr.BadRequest("%v", err)
		}
		draft.Rating = &rating
	}
	if req.ReplyTo != nil {
		parent, err := models.ParsePostId(*req.ReplyTo)
		if err != nil {
			return 0, httperr.BadRequest("invalid reply_to: %v", err)
		}
		draft.Parent = &parent
	}

	var privacy *models.Privacy
	if req.Privacy != nil {
		p, err := models.ParsePrivacy(*req.Privacy)
		if err != nil {
			return 0, httperr.BadRequest("%v", err)
		}
		if p == models.PrivacyUnpublished {
			return 0, httperr.BadRequest("cannot set privacy to unpublished")
		}
		privacy = &p
	}

	id, err := s.generatePostId(ctx)
	if err != nil {
		return 0, err
	}
	draft.PostID = id

	// The tag service round-trip overlaps the transaction below; a fresh
	// draft has no tags yet but the transition path awaits the result
	// unconditionally.
	var tagCh <-chan tagsResult
	if privacy != nil {
		tagCh = s.fetchTags(ctx, id)
	}

	err = s.posts.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.posts.CreateDraft(txCtx, draft); err != nil {
			return httperr.Internal(err)
		}
		if privacy != nil {
			state := &repository.OwnPostState{Privacy: models.PrivacyDraft, Rating: models.RatingGeneral}
			if draft.Rating != nil {
				state.Rating = *draft.Rating
			}
			return s.transitionFrom(txCtx, user, id, state, *privacy, tagCh)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *postService) UpdatePost(ctx context.Context, user *types.UserContext, req *models.UpdateRequest) error {
	id, err := models.ParsePostId(req.PostID)
	if err != nil {
		return httperr.BadRequest("invalid post_id: %v", err)
	}

	patch := &models.PostPatch{}
	if req.Title != nil {
		if utf8.RuneCountInString(*req.Title) > models.MaxTitleLength {
			return httperr.BadRequest("title exceeds %d characters", models.MaxTitleLength)
		}
		patch.Title = req.Title
	}
	if req.Description != nil {
		if utf8.RuneCountInString(*req.Description) > models.MaxDescriptionLength {
			return httperr.BadRequest("description exceeds %d characters", models.MaxDescriptionLength)
		}
		patch.Description = req.Description
	}
	if req.Rating != nil {
		rating, err := models.ParseRating(*req.Rating)
		if err != nil {
			return httperr.BadRequest("%v", err)
		}
		patch.Rating = &rating
	}

	var privacy *models.Privacy
	if req.Privacy != nil {
		p, err := models.ParsePrivacy(*req.Privacy)
		if err != nil {
			return httperr.BadRequest("%v", err)
		}
		if p == models.PrivacyUnpublished {
			return httperr.BadRequest("cannot set privacy to unpublished")
		}
		privacy = &p
	}

	if patch.Empty() && privacy == nil {
		return httperr.BadRequest("no params")
	}

	var tagCh <-chan tagsResult
	if privacy != nil {
		tagCh = s.fetchTags(ctx, id)
	}

	err = s.posts.WithTransaction(ctx, func(txCtx context.Context) error {
		if !patch.Empty() {
			if err := s.posts.UpdateFields(txCtx, user.UserID, id, patch); err != nil {
				return s.ownershipError(err)
			}
		}
		if privacy != nil {
			state, err := s.posts.OwnPostState(txCtx, user.UserID, id)
			if err != nil {
				return s.ownershipError(err)
			}
			return s.transitionFrom(txCtx, user, id, state, *privacy, tagCh)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if privacy != nil {
		// The cached copy's privacy, created_on, and score linkage all may
		// have changed; drop it rather than patch it.
		s.evictPost(ctx, id)
		return nil
	}
	s.patchCachedPost(ctx, id, func(p *models.Post) {
		if patch.Title != nil {
			p.Title = nullable(*patch.Title)
		}
		if patch.Description != nil {
			p.Description = nullable(*patch.Description)
		}
		if patch.Rating != nil {
			p.Rating = *patch.Rating
		}
		p.UpdatedOn = time.Now().UTC()
	})
	return nil
}

func (s *postService) UpdatePrivacy(ctx context.Context, user *types.UserContext, req *models.PrivacyRequest) error {
	id, err := models.ParsePostId(req.PostID)
	if err != nil {
		return httperr.BadRequest("invalid post_id: %v", err)
	}
	privacy, err := models.ParsePrivacy(req.Privacy)
	if err != nil {
		return httperr.BadRequest("%v", err)
	}
	if privacy == models.PrivacyUnpublished {
		return httperr.BadRequest("cannot set privacy to unpublished")
	}

	tagCh := s.fetchTags(ctx, id)

	err = s.posts.WithTransaction(ctx, func(txCtx context.Context) error {
		state, err := s.posts.OwnPostState(txCtx, user.UserID, id)
		if err != nil {
			return s.ownershipError(err)
		}
		return s.transitionFrom(txCtx, user, id, state, privacy, tagCh)
	})
	if err != nil {
		return err
	}

	s.evictPost(ctx, id)
	return nil
}

// transitionFrom flips the post's privacy inside the caller's transaction.
// A first publish (leaving unpublished/draft) additionally seeds the
// uploader's self-vote and the score row in the same statement. Counter
// deltas are enqueued when the post enters or leaves public visibility.
func (s *postService) transitionFrom(txCtx context.Context, user *types.UserContext, id models.PostId, state *repository.OwnPostState, next models.Privacy, tagCh <-chan tagsResult) error {
	old := state.Privacy
	if old == next {
		return httperr.BadRequest("post already has privacy %s", next)
	}
	if next == models.PrivacyDraft && old != models.PrivacyUnpublished {
		return httperr.BadRequest("only an unpublished post can become a draft")
	}

	if old.Hidden() && !next.Hidden() {
		now := time.Now().Unix()
		seed := &repository.ScoreSeed{
			Hot:           scoring.Hot(1, 0, now),
			Best:          scoring.Confidence(1, 1),
			Controversial: scoring.Controversial(1, 0),
		}
		if err := s.posts.PublishFirst(txCtx, user.UserID, id, next, seed); err != nil {
			return httperr.Internal(err)
		}
	} else {
		if err := s.posts.SetPrivacy(txCtx, user.UserID, id, next); err != nil {
			return s.ownershipError(err)
		}
	}

	var amount int64
	switch {
	case next == models.PrivacyPublic:
		amount = 1
	case old == models.PrivacyPublic:
		amount = -1
	default:
		return nil
	}

	res := <-tagCh
	if res.err != nil {
		return res.err
	}

	s.counters.Enqueue(counters.Delta{Key: counters.GlobalKey, Amount: amount})
	s.counters.Enqueue(counters.Delta{Key: counters.UserKey(user.UserID), Amount: amount})
	s.counters.Enqueue(counters.Delta{Key: counters.RatingKey(state.Rating), Amount: amount})
	for _, tag := range res.groups.Flatten() {
		s.counters.Enqueue(counters.Delta{Key: counters.TagKey(tag), Amount: amount})
	}
	return nil
}

type tagsResult struct {
	groups types.TagGroups
	err    error
}

// fetchTags starts the tag service round-trip so it overlaps the SQL work.
func (s *postService) fetchTags(ctx context.Context, id models.PostId) <-chan tagsResult {
	ch := make(chan tagsResult, 1)
	go func() {
		groups, err := s.tags.PostTags(ctx, id.String())
		ch <- tagsResult{groups: groups, err: err}
	}()
	return ch
}

// generatePostId draws random ids until one is free.
func (s *postService) generatePostId(ctx context.Context) (models.PostId, error) {
	for i := 0; i < idAttempts; i++ {
		id, err := models.NewPostId()
		if err != nil {
			return 0, httperr.Internal(err)
		}
		taken, err := s.posts.Exists(ctx, id)
		if err != nil {
			return 0, httperr.Internal(err)
		}
		if !taken {
			return id, nil
		}
	}
	return 0, httperr.Internal(fmt.Errorf("exhausted %d post id draws", idAttempts))
}

// ownershipError maps repository sentinels onto HTTP error kinds.
func (s *postService) ownershipError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrPostNotFound):
		return httperr.NotFound("post not found")
	case errors.Is(err, repository.ErrNotOwner):
		return httperr.Forbidden("post belongs to another user")
	default:
		return httperr.Internal(err)
	}
}

// nullable folds the empty string back to NULL the way the column stores it.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
