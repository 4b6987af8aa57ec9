package storage

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path"
)

const archiveContentType = "text/html; charset=utf-8"

// ArchiveOptions tunes how pages are written to the archive.
type ArchiveOptions struct {
	Prefix       string // defaults to "pages"
	CacheControl string
	// SkipExisting keeps the first archived copy of a page instead of
	// overwriting it on every crawl.
	SkipExisting bool
}

// PageArchive keeps raw copies of scraped pages so parse failures can be
// replayed later. Keys are content addressed by page URL.
type PageArchive struct {
	store ObjectStorage
	opts  ArchiveOptions
}

// NewPageArchive wraps an ObjectStorage.
func NewPageArchive(store ObjectStorage, opts ArchiveOptions) *PageArchive {
	if opts.Prefix == "" {
		opts.Prefix = "pages"
	}
	return &PageArchive{store: store, opts: opts}
}

// KeyFor returns the object key used for pageURL.
func (a *PageArchive) KeyFor(pageURL string) string {
	sum := sha1.Sum([]byte(pageURL))
	return path.Join(a.opts.Prefix, hex.EncodeToString(sum[:])+".html")
}

// Archive stores body for pageURL and returns the object URL. With
// SkipExisting an already archived page is left untouched.
func (a *PageArchive) Archive(ctx context.Context, pageURL string, body []byte) (string, error) {
	key := a.KeyFor(pageURL)

	if a.opts.SkipExisting {
		exists, err := a.store.Exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", pageURL, err)
		}
		if exists {
			return a.store.GetURL(key), nil
		}
	}

	meta := ObjectMeta{
		ContentType:  archiveContentType,
		CacheControl: a.opts.CacheControl,
		SourceURL:    pageURL,
	}
	if err := a.store.Upload(ctx, key, bytes.NewReader(body), int64(len(body)), meta); err != nil {
		return "", fmt.Errorf("archive %s: %w", pageURL, err)
	}
	return a.store.GetURL(key), nil
}
