package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

var (
	ErrFetch  = errors.New("transcript request failed")
	ErrStatus = errors.New("transcript request returned non-success status")
)

// Fetcher downloads timed-text documents. Caption URLs reject requests
// attributed to a page origin; a server-side client carries none.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

type Option func(*Fetcher)

func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.client = &http.Client{Timeout: d}
	}
}

func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: 30 * time.Second}
	}
	return f
}

// Fetch downloads url and returns its caption text. Failures keep their
// cause: ErrFetch, ErrStatus or ErrParse.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "application/xml,text/xml;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}

	return Parse(resp.Body)
}

// FetchText is Fetch with every failure collapsed to the empty string.
func (f *Fetcher) FetchText(ctx context.Context, url string) string {
	text, err := f.Fetch(ctx, url)
	if err != nil {
		slog.Debug("transcript: fetch failed", slog.String("url", url), slog.Any("error", err))
		return ""
	}
	return text
}
