package qa

import (
	"context"

	"github.com/xhad/tubeqa/pkg/captions"
	"github.com/xhad/tubeqa/pkg/relay"
)

// YouTubeSource resolves transcripts and titles from live watch pages.
type YouTubeSource struct {
	relay    *relay.Relay
	pageOpts []captions.PageOption
}

func NewYouTubeSource(r *relay.Relay, opts ...captions.PageOption) *YouTubeSource {
	return &YouTubeSource{relay: r, pageOpts: opts}
}

func (s *YouTubeSource) Transcript(ctx context.Context, videoURL string) (string, error) {
	page, err := captions.NewWatchPage(videoURL, s.pageOpts...)
	if err != nil {
		return "", err
	}
	return s.relay.ResolveVideo(ctx, page.VideoID(), page)
}

func (s *YouTubeSource) Title(ctx context.Context, videoURL string) (string, error) {
	page, err := captions.NewWatchPage(videoURL, s.pageOpts...)
	if err != nil {
		return "", err
	}
	return page.Title(ctx)
}

// StateSource builds the watch page for a relay request.
func (s *YouTubeSource) StateSource(req relay.Request) (captions.StateSource, error) {
	return captions.NewWatchPage(req.VideoURL, s.pageOpts...)
}
