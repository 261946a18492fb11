package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/plumehq/plume/internal/pkg/log"
	"github.com/plumehq/plume/posts/models"
)

// Cache keys follow the platform-wide convention: post:{post_id} for the
// denormalized post projection, user:{user_id} for the user projection.
func postCacheKey(id models.PostId) string {
	return "post:" + id.String()
}

func userCacheKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// patchCachedPost rewrites the cached projection in place when one is
// present. Cache trouble is logged and swallowed: the row is the source of
// truth and the entry repopulates on the next read.
func (s *postService) patchCachedPost(ctx context.Context, id models.PostId, apply func(*models.Post)) {
	key := postCacheKey(id)
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return
	}
	var post models.Post
	if err := json.Unmarshal(raw, &post); err != nil {
		log.WarnWithContext(ctx, "dropping undecodable cache entry %s: %v", key, err)
		_ = s.cache.Delete(ctx, key)
		return
	}
	apply(&post)
	encoded, err := json.Marshal(&post)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, encoded, 0); err != nil {
		log.WarnWithContext(ctx, "failed to patch cache entry %s: %v", key, err)
	}
}

func (s *postService) evictPost(ctx context.Context, id models.PostId) {
	if err := s.cache.Delete(ctx, postCacheKey(id)); err != nil {
		log.WarnWithContext(ctx, "failed to evict cached post %s: %v", id, err)
	}
}

// patchCachedUser rewrites the cached user projection, same contract as
// patchCachedPost.
func (s *postService) patchCachedUser(ctx context.Context, userID int64, apply func(map[string]interface{})) {
	key := userCacheKey(userID)
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		return
	}
	// The user projection is owned by the user service; patch it as a loose
	// document so unknown fields survive the round trip.
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.WarnWithContext(ctx, "dropping undecodable cache entry %s: %v", key, err)
		_ = s.cache.Delete(ctx, key)
		return
	}
	apply(doc)
	encoded, err := json.Marshal(doc)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, encoded, 0); err != nil {
		log.WarnWithContext(ctx, "failed to patch cache entry %s: %v", key, err)
	}
}
