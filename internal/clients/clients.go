// Package clients holds the outbound HTTP clients for the thin
// collaborators: the tag service, the user service, and the CDN. The core
// consumes them through small interfaces so tests can stub them out.
package clients

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpDoer is the slice of *http.Client the clients use.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// newHTTPClient builds the shared outbound client.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// joinURL joins a base URL and a path without doubling slashes.
func joinURL(base, path string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// decodeJSON reads and decodes a response body.
func decodeJSON(body io.Reader, v interface{}) error {
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
