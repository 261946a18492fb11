package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/plumehq/plume/internal/cache"
	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/pkg/log"
	"github.com/plumehq/plume/internal/types"
	postmodels "github.com/plumehq/plume/posts/models"
	postrepo "github.com/plumehq/plume/posts/repository"
	"github.com/plumehq/plume/votes/models"
	"github.com/plumehq/plume/votes/repository"
	"github.com/plumehq/plume/votes/scoring"
)

// VoteService records votes and keeps the score row in step with the vote
// table.
type VoteService interface {
	// Vote upserts the caller's vote on a post and recomputes the score
	// row, returning the fresh score.
	Vote(ctx context.Context, user *types.UserContext, req *models.VoteRequest) (*models.Score, error)

	// Score reads a post's score, preferring the cached snapshot over the
	// score row.
	Score(ctx context.Context, postID string) (*models.Score, error)
}

// voteService implements the VoteService interface
type voteService struct {
	voteRepo repository.VoteRepository
	postRepo postrepo.PostRepository
	cache    cache.Cache
}

// NewVoteService creates a new instance of the vote service
func NewVoteService(voteRepo repository.VoteRepository, postRepo postrepo.PostRepository, cacheService cache.Cache) VoteService {
	return &voteService{
		voteRepo: voteRepo,
		postRepo: postRepo,
		cache:    cacheService,
	}
}

// Vote upserts the vote row and recomputes the aggregates in one
// transaction, then writes through the score and user-vote caches.
func (s *voteService) Vote(ctx context.Context, user *types.UserContext, req *models.VoteRequest) (*models.Score, error) {
	upvote, err := req.ParseVote()
	if err != nil {
		return nil, httperr.BadRequest("%v", err)
	}

	postID, err := postmodels.ParsePostId(req.PostID)
	if err != nil {
		return nil, httperr.BadRequest("%v", err)
	}

	var score *models.Score
	err = s.postRepo.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.voteRepo.UpsertVote(txCtx, user.UserID, postID, upvote); err != nil {
			return err
		}

		agg, err := s.voteRepo.Aggregate(txCtx, postID)
		if err != nil {
			return err
		}

		up, down := agg.Up, agg.Total-agg.Up
		score = &models.Score{
			PostID:        postID,
			Up:            up,
			Down:          down,
			Top:           up - down,
			Hot:           scoring.Hot(up, down, agg.CreatedOn.Unix()),
			Best:          scoring.Confidence(up, agg.Total),
			Controversial: scoring.Controversial(up, down),
		}

		return s.voteRepo.UpsertScore(txCtx, score)
	})
	if err != nil {
		if errors.Is(err, repository.ErrPostNotFound) {
			return nil, httperr.NotFound("post not found")
		}
		return nil, httperr.Internal(err)
	}

	s.writeThrough(ctx, user.UserID, score, upvote)

	return score, nil
}

// Score serves the cached snapshot when present and falls back to the
// score row, re-priming the cache on the way out. A post that was never
// voted on has no row and reads as not found.
func (s *voteService) Score(ctx context.Context, postID string) (*models.Score, error) {
	id, err := postmodels.ParsePostId(postID)
	if err != nil {
		return nil, httperr.BadRequest("%v", err)
	}

	if raw, err := s.cache.Get(ctx, ScoreCacheKey(id)); err == nil {
		var score models.Score
		if err := json.Unmarshal(raw, &score); err == nil {
			return &score, nil
		}
		log.WarnWithContext(ctx, "discarding malformed score snapshot for %s", id)
	} else if !errors.Is(err, cache.ErrKeyNotFound) {
		log.WarnWithContext(ctx, "score cache read for %s failed: %v", id, err)
	}

	score, err := s.voteRepo.GetScore(ctx, id)
	if err != nil {
		return nil, httperr.Internal(err)
	}
	if score == nil {
		return nil, httperr.NotFound("post has no score")
	}

	if payload, err := json.Marshal(score); err == nil {
		if err := s.cache.Set(ctx, ScoreCacheKey(id), payload, 0); err != nil {
			log.WarnWithContext(ctx, "failed to cache score for %s: %v", id, err)
		}
	}

	return score, nil
}

// writeThrough refreshes the score snapshot and the caller's vote entry.
// Failures are logged and swallowed: the row is already committed.
func (s *voteService) writeThrough(ctx context.Context, userID int64, score *models.Score, upvote *bool) {
	if payload, err := json.Marshal(score); err == nil {
		if err := s.cache.Set(ctx, ScoreCacheKey(score.PostID), payload, 0); err != nil {
			log.WarnWithContext(ctx, "failed to cache score for %s: %v", score.PostID, err)
		}
	}

	value := int64(0)
	if upvote != nil {
		if *upvote {
			value = 1
		} else {
			value = -1
		}
	}
	key := VoteCacheKey(userID, score.PostID)
	if err := s.cache.Set(ctx, key, []byte(strconv.FormatInt(value, 10)), 0); err != nil {
		log.WarnWithContext(ctx, "failed to cache vote %s: %v", key, err)
	}
}

// ScoreCacheKey is the cache key of a post's score snapshot.
func ScoreCacheKey(postID postmodels.PostId) string {
	return fmt.Sprintf("score:%s", postID)
}

// VoteCacheKey is the cache key of a user's vote on a post: 1 up, -1 down,
// 0 retracted.
func VoteCacheKey(userID int64, postID postmodels.PostId) string {
	return fmt.Sprintf("%d|%s", userID, postID)
}
