package scraper

import (
	"context"
	"errors"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	maxBodySize  = 16 << 20
)

// HTTPFetcher fetches pages through a colly collector with browser-like
// headers. Each Fetch runs on its own clone, so calls are independent and
// every status code comes back to the caller.
type HTTPFetcher struct {
	base           *colly.Collector
	acceptLanguage string
}

func NewHTTPFetcher(timeout time.Duration, userAgent, acceptLanguage string) *HTTPFetcher {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(maxBodySize),
	)
	c.SetRequestTimeout(timeout)

	return &HTTPFetcher{base: c, acceptLanguage: acceptLanguage}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	c := f.base.Clone()
	c.Context = ctx

	var (
		page     *Response
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
		if f.acceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.acceptLanguage)
		}
	})

	c.OnResponse(func(r *colly.Response) {
		page = &Response{URL: r.Request.URL, StatusCode: r.StatusCode, Body: string(r.Body)}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r == nil || r.StatusCode == 0 {
			fetchErr = &TransportError{URL: rawURL, Err: err}
			return
		}
		page = &Response{URL: r.Request.URL, StatusCode: r.StatusCode, Body: string(r.Body)}
		fetchErr = &TransportError{URL: rawURL, StatusCode: r.StatusCode}
	})

	if err := c.Visit(rawURL); err != nil && fetchErr == nil {
		fetchErr = &TransportError{URL: rawURL, Err: err}
	}
	if fetchErr != nil {
		return page, fetchErr
	}
	if page == nil {
		return nil, &TransportError{URL: rawURL, Err: errors.New("no response")}
	}

	return page, nil
}
