package idp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher retrieves a well-known document body. Implementations must bound
// the fetch with a deadline and perform ordinary TLS verification against
// the platform trust store; the shim table is the only way around HTTPS.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// DefaultFetchTimeout bounds a single support document fetch (one per
// delegation hop).
const DefaultFetchTimeout = 10 * time.Second

// maxSupportDocumentBytes caps the response body; support documents are a
// key plus two paths.
const maxSupportDocumentBytes = 1 << 20

// HTTPFetcher fetches over HTTPS with the default transport.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher with the given per-request timeout.
// A non-positive timeout falls back to DefaultFetchTimeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch performs the GET. Network failures and timeouts surface as
// ErrUnreachable; any non-200 status surfaces as ErrNoSupportDocument.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d from %s", ErrNoSupportDocument, resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSupportDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return body, nil
}
