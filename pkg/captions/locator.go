package captions

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

const (
	DefaultMaxAttempts = 20
	DefaultInterval    = 400 * time.Millisecond
)

// CaptionTrack describes one caption stream exposed by the watch page.
type CaptionTrack struct {
	LanguageCode string `json:"languageCode"`
	BaseURL      string `json:"baseUrl"`
}

// StateSource returns the raw player state object of a watch page.
type StateSource interface {
	CaptionState(ctx context.Context) (json.RawMessage, error)
}

// StateFunc adapts a function to StateSource.
type StateFunc func(ctx context.Context) (json.RawMessage, error)

func (f StateFunc) CaptionState(ctx context.Context) (json.RawMessage, error) {
	return f(ctx)
}

// Clock schedules the gaps between polling attempts.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is backed by the runtime timers.
var SystemClock Clock = systemClock{}

// playerState mirrors the part of ytInitialPlayerResponse we read.
type playerState struct {
	Captions *struct {
		Renderer *struct {
			CaptionTracks []CaptionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

// Locator polls a StateSource until caption tracks show up.
type Locator struct {
	Source      StateSource
	Clock       Clock
	MaxAttempts int
	Interval    time.Duration
}

func NewLocator(source StateSource, maxAttempts int, interval time.Duration) *Locator {
	if maxAttempts < 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Locator{
		Source:      source,
		Clock:       SystemClock,
		MaxAttempts: maxAttempts,
		Interval:    interval,
	}
}

// Locate checks the source immediately and then up to MaxAttempts more
// times, Interval apart. It reports false when no attempt produced a
// non-empty track list or ctx ended first.
func (l *Locator) Locate(ctx context.Context) ([]CaptionTrack, bool) {
	clock := l.Clock
	if clock == nil {
		clock = SystemClock
	}

	for attempt := 0; ; attempt++ {
		if tracks := l.check(ctx); len(tracks) > 0 {
			slog.Debug("captions: tracks found", slog.Int("attempt", attempt), slog.Int("tracks", len(tracks)))
			return tracks, true
		}
		if attempt >= l.MaxAttempts {
			break
		}
		select {
		case <-clock.After(l.Interval):
		case <-ctx.Done():
			slog.Debug("captions: polling cancelled", slog.Int("attempt", attempt), slog.Any("error", ctx.Err()))
			return nil, false
		}
	}

	slog.Warn("captions: timed out waiting for captions", slog.Int("attempts", l.MaxAttempts+1))
	return nil, false
}

func (l *Locator) check(ctx context.Context) []CaptionTrack {
	if l.Source == nil {
		return nil
	}
	raw, err := l.Source.CaptionState(ctx)
	if err != nil {
		slog.Debug("captions: state unavailable", slog.Any("error", err))
		return nil
	}
	return tracksFromState(raw)
}

// tracksFromState treats any shape other than the expected one as absent.
func tracksFromState(raw json.RawMessage) []CaptionTrack {
	if len(raw) == 0 {
		return nil
	}
	var state playerState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil
	}
	if state.Captions == nil || state.Captions.Renderer == nil {
		return nil
	}
	return state.Captions.Renderer.CaptionTracks
}

// SelectTrack prefers the first English track and falls back to the first.
func SelectTrack(tracks []CaptionTrack) (CaptionTrack, bool) {
	if len(tracks) == 0 {
		return CaptionTrack{}, false
	}
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return tracks[0], true
}
