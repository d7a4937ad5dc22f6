package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xhad/tubeqa/pkg/cache"
	"github.com/xhad/tubeqa/pkg/captions"
	"github.com/xhad/tubeqa/pkg/transcript"
)

const ActionGetTranscript = "getTranscript"

var (
	ErrCaptionsUnavailable = errors.New("caption list unavailable")
	ErrNoTrack             = errors.New("no usable caption track")
)

// Request is the single message a caller sends to obtain a transcript.
type Request struct {
	Action   string `json:"action"`
	VideoURL string `json:"video_url,omitempty"`
}

// Response always carries a transcript, empty when none is available.
type Response struct {
	Transcript string `json:"transcript"`
}

// SourceFunc builds the state source for a request, typically a watch page.
type SourceFunc func(req Request) (captions.StateSource, error)

// Relay resolves transcripts: locate caption tracks, pick one, fetch it.
type Relay struct {
	MaxAttempts int
	Interval    time.Duration
	Clock       captions.Clock
	Fetcher     *transcript.Fetcher
	Cache       *cache.Cache
}

func New(fetcher *transcript.Fetcher, opts ...Option) *Relay {
	r := &Relay{
		MaxAttempts: captions.DefaultMaxAttempts,
		Interval:    captions.DefaultInterval,
		Fetcher:     fetcher,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.Fetcher == nil {
		r.Fetcher = transcript.NewFetcher()
	}
	return r
}

type Option func(*Relay)

// WithPolling overrides the caption poll budget.
func WithPolling(maxAttempts int, interval time.Duration) Option {
	return func(r *Relay) {
		r.MaxAttempts = maxAttempts
		r.Interval = interval
	}
}

func WithClock(c captions.Clock) Option {
	return func(r *Relay) {
		r.Clock = c
	}
}

func WithCache(c *cache.Cache) Option {
	return func(r *Relay) {
		r.Cache = c
	}
}

func (r *Relay) locator(src captions.StateSource) *captions.Locator {
	l := captions.NewLocator(src, r.MaxAttempts, r.Interval)
	if r.Clock != nil {
		l.Clock = r.Clock
	}
	return l
}

// Resolve returns the transcript for src, or the reason there is none.
func (r *Relay) Resolve(ctx context.Context, src captions.StateSource) (string, error) {
	tracks, ok := r.locator(src).Locate(ctx)
	if !ok {
		return "", ErrCaptionsUnavailable
	}

	track, ok := captions.SelectTrack(tracks)
	if !ok || track.BaseURL == "" {
		return "", ErrNoTrack
	}

	return r.Fetcher.Fetch(ctx, track.BaseURL)
}

// ResolveVideo is Resolve with the transcript cached under the video id.
func (r *Relay) ResolveVideo(ctx context.Context, videoID string, src captions.StateSource) (string, error) {
	key := cache.Key("transcript", videoID)
	if text, ok := r.Cache.Get(ctx, key); ok {
		return text, nil
	}

	text, err := r.Resolve(ctx, src)
	if err != nil {
		return "", err
	}
	if text != "" {
		r.Cache.Set(ctx, key, text)
	}
	return text, nil
}

// GetTranscript collapses every failure into the empty transcript.
func (r *Relay) GetTranscript(ctx context.Context, src captions.StateSource) string {
	text, err := r.Resolve(ctx, src)
	if err != nil {
		slog.Info("relay: no transcript", slog.Any("reason", err))
		return ""
	}
	return text
}

// Handle answers req asynchronously. The channel receives exactly one
// Response and is closed afterwards; the caller keeps waiting on it for as
// long as locating may take.
func (r *Relay) Handle(ctx context.Context, req Request, source SourceFunc) <-chan Response {
	out := make(chan Response, 1)

	go func() {
		defer close(out)

		if req.Action != ActionGetTranscript {
			slog.Debug("relay: ignoring action", slog.String("action", req.Action))
			out <- Response{}
			return
		}

		src, err := source(req)
		if err != nil {
			slog.Info("relay: no state source", slog.String("video_url", req.VideoURL), slog.Any("error", err))
			out <- Response{}
			return
		}

		if id, err := captions.ExtractVideoID(req.VideoURL); err == nil {
			text, err := r.ResolveVideo(ctx, id, src)
			if err != nil {
				slog.Info("relay: no transcript", slog.String("video_id", id), slog.Any("reason", err))
			}
			out <- Response{Transcript: text}
			return
		}

		out <- Response{Transcript: r.GetTranscript(ctx, src)}
	}()

	return out
}
