package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	postmodels "github.com/plumehq/plume/posts/models"
)

// Vote is a user's vote on a post, primary key (user_id, post_id). A nil
// Upvote means the vote was retracted; retracted rows stay in the table but
// are excluded from every aggregate.
type Vote struct {
	UserID    int64             `db:"user_id" json:"user_id"`
	PostID    postmodels.PostId `db:"post_id" json:"post_id"`
	Upvote    *bool             `db:"upvote" json:"upvote"`
	CreatedOn time.Time         `db:"created_on" json:"created_on"`
	UpdatedOn time.Time         `db:"updated_on" json:"updated_on"`
}

// Score is the per-post score row, recomputed from the vote table on every
// vote and seeded on first publish.
type Score struct {
	PostID        postmodels.PostId `db:"post_id" json:"post_id"`
	Up            int64             `db:"upvotes" json:"up"`
	Down          int64             `db:"downvotes" json:"down"`
	Top           int64             `db:"top" json:"top"`
	Hot           float64           `db:"hot" json:"hot"`
	Best          float64           `db:"best" json:"best"`
	Controversial float64           `db:"controversial" json:"controversial"`
}

// VoteAggregate is the single-query recompute result: the created_on of the
// post plus the non-null vote counts.
type VoteAggregate struct {
	Total     int64     `db:"total"`
	Up        int64     `db:"up"`
	CreatedOn time.Time `db:"created_on"`
}

// VoteRequest is the body of POST /v1/vote. The wire value of "vote" must
// be exactly true, false, or null; anything else is a client error, and the
// raw form is kept so the handler can tell null from absent.
type VoteRequest struct {
	PostID string          `json:"post_id"`
	Vote   json.RawMessage `json:"vote"`
}

var (
	jsonTrue  = []byte("true")
	jsonFalse = []byte("false")
	jsonNull  = []byte("null")
)

// ParseVote maps the wire value to *bool: true/false vote, nil retraction.
func (r *VoteRequest) ParseVote() (*bool, error) {
	raw := bytes.TrimSpace(r.Vote)
	switch {
	case bytes.Equal(raw, jsonTrue):
		v := true
		return &v, nil
	case bytes.Equal(raw, jsonFalse):
		v := false
		return &v, nil
	case bytes.Equal(raw, jsonNull):
		return nil, nil
	default:
		return nil, fmt.Errorf("vote must be true, false, or null")
	}
}
