// Package fetcher downloads provider data over HTTP with retry and
// per-host rate limiting, and decodes JSON and XLSX payloads.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadIfChanged fetches the URL unless the server still serves
	// the content named by etag. When nothing changed the body is nil
	// and changed is false; otherwise the fresh body and its new ETag
	// come back.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}
