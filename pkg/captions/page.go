package captions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

const (
	DefaultWatchURL = "https://www.youtube.com/watch"

	playerResponseVar = "ytInitialPlayerResponse"
	browserUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

var ErrNoPlayerResponse = errors.New("watch page carries no player response")

// WatchPage reads the player state straight out of a watch page's HTML.
type WatchPage struct {
	videoID  string
	watchURL string
	client   *http.Client
	limiter  *rate.Limiter

	mu       sync.Mutex
	title    string
	parsed   bool
	state    json.RawMessage
	stateErr error
}

type PageOption func(*WatchPage)

// WithWatchURL points the page at another host, mostly for tests.
func WithWatchURL(u string) PageOption {
	return func(p *WatchPage) {
		p.watchURL = u
	}
}

func WithHTTPClient(c *http.Client) PageOption {
	return func(p *WatchPage) {
		p.client = c
	}
}

// WithLimiter shares one limiter across pages so the server stays polite.
func WithLimiter(l *rate.Limiter) PageOption {
	return func(p *WatchPage) {
		p.limiter = l
	}
}

func NewWatchPage(videoURL string, opts ...PageOption) (*WatchPage, error) {
	id, err := ExtractVideoID(videoURL)
	if err != nil {
		return nil, err
	}

	p := &WatchPage{
		videoID:  id,
		watchURL: DefaultWatchURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.client == nil {
		p.client = &http.Client{Timeout: 15 * time.Second}
	}
	if p.limiter == nil {
		p.limiter = rate.NewLimiter(rate.Limit(2), 1)
	}
	return p, nil
}

func (p *WatchPage) VideoID() string { return p.videoID }

// URL is the canonical watch URL of the video.
func (p *WatchPage) URL() string {
	return p.watchURL + "?v=" + url.QueryEscape(p.videoID)
}

// CaptionState fetches the page and returns ytInitialPlayerResponse.
// The first parse is kept for the life of the page, including a page
// without a player response; only transport failures are retried.
func (p *WatchPage) CaptionState(ctx context.Context) (json.RawMessage, error) {
	p.mu.Lock()
	if p.parsed {
		state, err := p.state, p.stateErr
		p.mu.Unlock()
		return state, err
	}
	p.mu.Unlock()

	doc, err := p.load(ctx)
	if err != nil {
		return nil, err
	}

	state, err := findPlayerResponse(doc)

	p.mu.Lock()
	p.parsed = true
	p.state, p.stateErr = state, err
	p.mu.Unlock()
	return state, err
}

// Title returns the video title, loading the page if needed.
func (p *WatchPage) Title(ctx context.Context) (string, error) {
	p.mu.Lock()
	title := p.title
	p.mu.Unlock()
	if title != "" {
		return title, nil
	}
	if _, err := p.load(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.title, nil
}

func (p *WatchPage) load(ctx context.Context) (*goquery.Document, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, p.URL())
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	if title := cleanPageTitle(doc.Find("title").First().Text()); title != "" {
		p.mu.Lock()
		p.title = title
		p.mu.Unlock()
	}
	return doc, nil
}

func cleanPageTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.TrimSuffix(title, "- YouTube")
	return strings.TrimSpace(title)
}

// findPlayerResponse locates the script assigning ytInitialPlayerResponse
// and decodes exactly one JSON value after the assignment.
func findPlayerResponse(doc *goquery.Document) (json.RawMessage, error) {
	var state json.RawMessage
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		body := s.Text()
		idx := strings.Index(body, playerResponseVar)
		if idx < 0 {
			return true
		}
		rest := body[idx+len(playerResponseVar):]
		eq := strings.Index(rest, "=")
		if eq < 0 {
			return true
		}
		rest = strings.TrimSpace(rest[eq+1:])
		if !strings.HasPrefix(rest, "{") {
			return true
		}
		var raw json.RawMessage
		if err := json.NewDecoder(strings.NewReader(rest)).Decode(&raw); err != nil {
			return true
		}
		state = raw
		return false
	})

	if state == nil {
		return nil, ErrNoPlayerResponse
	}
	return state, nil
}
