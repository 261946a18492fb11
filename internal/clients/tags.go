package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/types"
)

// TagLookup fetches a post's tag groups from the tag service.
type TagLookup interface {
	// PostTags returns the tag groups of a post. A post unknown to the tag
	// service yields an empty map, not an error.
	PostTags(ctx context.Context, postID string) (types.TagGroups, error)
}

// TagClient is the HTTP tag service client.
type TagClient struct {
	baseURL string
	http    httpDoer
}

// NewTagClient creates a tag service client.
func NewTagClient(baseURL string, timeout time.Duration) *TagClient {
	return &TagClient{baseURL: baseURL, http: newHTTPClient(timeout)}
}

// PostTags calls GET /v1/post_tags/{post_id}. 404 means the post carries
// no tags yet; any other non-2xx is a gateway failure.
func (c *TagClient) PostTags(ctx context.Context, postID string) (types.TagGroups, error) {
	url := joinURL(c.baseURL, "/v1/post_tags/"+postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tag request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, httperr.BadGateway(fmt.Sprintf("tag service unreachable: %v", err))
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return types.TagGroups{}, nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, httperr.BadGateway(fmt.Sprintf("tag service returned %d", res.StatusCode))
	}

	var groups types.TagGroups
	if err := decodeJSON(res.Body, &groups); err != nil {
		return nil, httperr.BadGateway(fmt.Sprintf("tag service sent malformed body: %v", err))
	}
	return groups, nil
}
