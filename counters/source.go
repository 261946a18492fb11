// Package counters is the denormalized count cache: one atomic integer per
// key, lazily seeded from SQL and nudged by privacy transitions.
package counters

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/plumehq/plume/internal/database/postgres"
	postmodels "github.com/plumehq/plume/posts/models"
)

// Key identifies one counter:
//
//	"_"          total public posts
//	"@{user_id}" public posts by user
//	"{rating}"   public posts at rating
//	"{tag}"      public posts carrying tag
type Key string

// GlobalKey is the public post tally.
const GlobalKey Key = "_"

// UserKey counts a user's public posts.
func UserKey(userID int64) Key {
	return Key(fmt.Sprintf("@%d", userID))
}

// RatingKey counts public posts at a rating.
func RatingKey(rating postmodels.Rating) Key {
	return Key(rating)
}

// TagKey counts public posts carrying a tag.
func TagKey(tag string) Key {
	return Key(tag)
}

// Source answers the canonical count for a key. The cache seeds misses
// from it.
type Source interface {
	Count(ctx context.Context, key Key) (int64, error)
}

// sqlSource implements Source with one COUNT(1) per key shape, all
// filtered to privacy = public.
type sqlSource struct {
	client *postgres.Client
}

// NewSQLSource creates the canonical Postgres count source.
func NewSQLSource(client *postgres.Client) Source {
	return &sqlSource{client: client}
}

func (s *sqlSource) Count(ctx context.Context, key Key) (int64, error) {
	query, args := seedQuery(key)

	var count int64
	if err := sqlx.GetContext(ctx, s.client.DB(), &count, query, args...); err != nil {
		return 0, fmt.Errorf("failed to seed counter %q: %w", key, err)
	}
	return count, nil
}

// seedQuery classifies the key: the global underscore, the @-prefixed user
// form, a rating name, and everything else is a tag.
func seedQuery(key Key) (string, []interface{}) {
	k := string(key)
	switch {
	case key == GlobalKey:
		return `SELECT count(1) FROM posts WHERE privacy_id = $1`,
			[]interface{}{postmodels.PrivacyPublic.ID()}

	case strings.HasPrefix(k, "@"):
		userID, _ := strconv.ParseInt(k[1:], 10, 64)
		return `SELECT count(1) FROM posts WHERE privacy_id = $1 AND uploader_user_id = $2`,
			[]interface{}{postmodels.PrivacyPublic.ID(), userID}

	case postmodels.IsRatingName(k):
		return `
			SELECT count(1) FROM posts
				INNER JOIN ratings ON posts.rating_id = ratings.rating_id
			WHERE posts.privacy_id = $1 AND ratings.name = $2`,
			[]interface{}{postmodels.PrivacyPublic.ID(), k}

	default:
		return `
			SELECT count(1) FROM posts
				INNER JOIN tag_post ON posts.post_id = tag_post.post_id
				INNER JOIN tags ON tag_post.tag_id = tags.tag_id
			WHERE posts.privacy_id = $1 AND tags.tag = $2`,
			[]interface{}{postmodels.PrivacyPublic.ID(), k}
	}
}
