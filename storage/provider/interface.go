package provider

import (
	"context"
)

// BlobProvider is the object store adapter. Keys are relative to the
// bucket and follow the {post_id}/... layout; the prefix partitions
// concurrent writers by post.
type BlobProvider interface {
	// Put uploads a blob under key with the given content type.
	Put(ctx context.Context, key string, contentType string, data []byte) error

	// Delete removes the blob under key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error
}
