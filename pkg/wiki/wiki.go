package wiki

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gowiki "github.com/trietmn/go-wiki"
)

var ErrNotFound = errors.New("no wikipedia page found")

// SearchFunc returns page titles matching query, best first.
type SearchFunc func(query string, limit int) ([]string, error)

// SummaryFunc returns the first sentences of the page called title.
type SummaryFunc func(title string, sentences int) (string, error)

// Client looks up short page summaries.
type Client struct {
	search    SearchFunc
	summarize SummaryFunc
	sentences int
	options   int
	timeout   time.Duration
}

type Option func(*Client)

// WithTimeout bounds a whole Summary call, search included.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithSentences(n int) Option {
	return func(c *Client) {
		c.sentences = n
	}
}

// WithBackend replaces the Wikipedia API calls, mostly for tests.
func WithBackend(search SearchFunc, summarize SummaryFunc) Option {
	return func(c *Client) {
		c.search = search
		c.summarize = summarize
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		search:    goWikiSearch,
		summarize: goWikiSummary,
		sentences: 2,
		options:   5,
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func goWikiSearch(query string, limit int) ([]string, error) {
	titles, _, err := gowiki.Search(query, limit, false)
	return titles, err
}

func goWikiSummary(title string, sentences int) (string, error) {
	return gowiki.Summary(title, sentences, -1, false, true)
}

// Summary returns the opening sentences of the page best matching query,
// prefixed the way answers are shown to users. When the best match cannot
// be summarized, typically a disambiguation page, the next matches are
// tried and the answer names the page it came from.
func (c *Client) Summary(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrNotFound
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var titles []string
	err := call(ctx, func() (err error) {
		titles, err = c.search(query, c.options)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("wikipedia search: %w", err)
	}
	if len(titles) == 0 {
		return "", ErrNotFound
	}

	for i, title := range titles {
		var text string
		err := call(ctx, func() (err error) {
			text, err = c.summarize(title, c.sentences)
			return err
		})
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		text = strings.TrimSpace(text)
		if err != nil || text == "" {
			continue
		}
		if i == 0 {
			return "According to Wikipedia:\n" + text, nil
		}
		return fmt.Sprintf("According to Wikipedia (%s):\n%s", title, text), nil
	}
	return "", ErrNotFound
}

// call runs fn, which cannot be cancelled, but stops waiting for it when ctx
// ends.
func call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
