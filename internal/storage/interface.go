package storage

import (
	"context"
	"io"
)

// sourceURLMetaKey is the user metadata key holding the page an archived
// object was fetched from. Backends send it as x-amz-meta-source-url.
const sourceURLMetaKey = "source-url"

// ObjectMeta describes an object being uploaded.
type ObjectMeta struct {
	ContentType  string
	CacheControl string
	SourceURL    string
}

// ObjectStorage is the subset of object store operations the page archive needs.
type ObjectStorage interface {
	// EnsureBucket creates the bucket when the backend allows it.
	EnsureBucket(ctx context.Context) error

	// Upload stores an object under key.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, meta ObjectMeta) error

	// Exists reports whether key is already stored.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the reference recorded for an archived object.
	GetURL(key string) string
}

// objectURL renders a public URL when one is configured and an s3:// reference
// otherwise.
func objectURL(publicURL, bucket, key string) string {
	if publicURL != "" {
		return publicURL + "/" + key
	}
	return "s3://" + bucket + "/" + key
}
