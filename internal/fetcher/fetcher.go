// Package fetcher loads facility location records from local files and HTTP
// sources in CSV, JSON or XLSX form.
package fetcher

import (
	"context"
	"io"
)

// Fetcher downloads remote inputs.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
