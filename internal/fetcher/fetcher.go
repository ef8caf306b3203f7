// Package fetcher downloads snapshot sources over HTTP and streams them as
// JSON elements or CSV records.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote snapshot data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadIfChanged fetches the URL only if its ETag differs from etag.
	// Returns (body, newETag, changed, error). When unchanged, body is nil.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
