package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/plumehq/plume/internal/httperr"
)

// BlobFetcher reads blobs back from the CDN. Icon and banner crops start
// from the stored original rather than the client's long-gone upload.
type BlobFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// CDNClient is the HTTP CDN client.
type CDNClient struct {
	baseURL string
	http    httpDoer
}

// NewCDNClient creates a CDN client.
func NewCDNClient(baseURL string, timeout time.Duration) *CDNClient {
	return &CDNClient{baseURL: baseURL, http: newHTTPClient(timeout)}
}

// Fetch calls GET /{key} and returns the raw bytes. Any non-2xx is a
// gateway failure.
func (c *CDNClient) Fetch(ctx context.Context, key string) ([]byte, error) {
	url := joinURL(c.baseURL, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build CDN request: %w", err)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, httperr.BadGateway(fmt.Sprintf("CDN unreachable: %v", err))
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, httperr.BadGateway(fmt.Sprintf("CDN returned %d for %s", res.StatusCode, key))
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, httperr.BadGateway(fmt.Sprintf("CDN read failed: %v", err))
	}
	return data, nil
}
