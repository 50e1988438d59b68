package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

var (
	ErrListingNotFound = errors.New("listing not found")
	ErrEmptyQuery      = errors.New("empty search query")
)

// MaxAttempts bounds every fetch of a listing or product page.
const MaxAttempts = 3

// Fetcher retrieves a page. A non-2xx status is reported as a
// *TransportError alongside the response.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

type Response struct {
	// URL is the final location after redirects.
	URL        *url.URL
	StatusCode int
	Body       string
}

// TransportError is a failed fetch: either no response at all or a
// response with a non-2xx status.
type TransportError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Gone reports a listing that no longer exists.
func (e *TransportError) Gone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

func (e *TransportError) ServerError() bool {
	return e.StatusCode >= http.StatusInternalServerError
}

func isGone(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Gone()
}

func isServerError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.ServerError()
}
