package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/plumehq/plume/internal/httperr"
	"github.com/plumehq/plume/internal/types"
)

// UserLookup fetches user records from the user service.
type UserLookup interface {
	GetUser(ctx context.Context, userID int64) (*types.User, error)
}

// UserClient is the HTTP user service client.
type UserClient struct {
	baseURL string
	http    httpDoer
}

// NewUserClient creates a user service client.
func NewUserClient(baseURL string, timeout time.Duration) *UserClient {
	return &UserClient{baseURL: baseURL, http: newHTTPClient(timeout)}
}

// GetUser calls GET /v1/users/{user_id}.
func (c *UserClient) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	url := joinURL(c.baseURL, fmt.Sprintf("/v1/users/%d", userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, httperr.BadGateway(fmt.Sprintf("user service unreachable: %v", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, httperr.BadGateway(fmt.Sprintf("user service returned %d", res.StatusCode))
	}

	var user types.User
	if err := decodeJSON(res.Body, &user); err != nil {
		return nil, httperr.BadGateway(fmt.Sprintf("user service sent malformed body: %v", err))
	}
	return &user, nil
}
