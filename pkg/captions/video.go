package captions

import (
	"errors"
	"regexp"
	"strings"
)

var ErrNoVideoID = errors.New("no valid video ID found in URL")

var videoIDPattern = regexp.MustCompile(`(?:v=|/videos/|embed/|youtu\.be/|shorts/)([a-zA-Z0-9_-]{11})`)

// ExtractVideoID returns the 11 character id of a YouTube URL.
func ExtractVideoID(url string) (string, error) {
	m := videoIDPattern.FindStringSubmatch(url)
	if m == nil {
		return "", ErrNoVideoID
	}
	return m[1], nil
}

// IsWatchURL reports whether url points at a regular watch page.
func IsWatchURL(url string) bool {
	return strings.HasPrefix(url, "https://www.youtube.com/watch?v=")
}
