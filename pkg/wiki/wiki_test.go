package wiki

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWiki struct {
	search    map[string][]string
	pages     map[string]string
	searchErr error
	summaries []string
}

func (f *fakeWiki) Search(query string, limit int) ([]string, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	titles := f.search[query]
	if len(titles) > limit {
		titles = titles[:limit]
	}
	return titles, nil
}

func (f *fakeWiki) Summary(title string, sentences int) (string, error) {
	f.summaries = append(f.summaries, title)
	text, ok := f.pages[title]
	if !ok {
		return "", errors.New(`"` + title + `" may refer to several pages`)
	}
	return text, nil
}

func newClient(f *fakeWiki) *Client {
	return NewClient(WithBackend(f.Search, f.Summary))
}

func TestSummary(t *testing.T) {
	f := &fakeWiki{
		search: map[string][]string{"gopher": {"Gopher"}},
		pages:  map[string]string{"Gopher": "Gophers are rodents. They dig."},
	}

	got, err := newClient(f).Summary(context.Background(), "gopher")
	require.NoError(t, err)
	assert.Equal(t, "According to Wikipedia:\nGophers are rodents. They dig.", got)
}

func TestSummaryDisambiguation(t *testing.T) {
	f := &fakeWiki{
		search: map[string][]string{"Mercury": {"Mercury", "Mercury (planet)", "Mercury (element)"}},
		pages:  map[string]string{"Mercury (planet)": "Mercury is the first planet."},
	}

	got, err := newClient(f).Summary(context.Background(), "Mercury")
	require.NoError(t, err)
	assert.Equal(t, "According to Wikipedia (Mercury (planet)):\nMercury is the first planet.", got)
	assert.Equal(t, []string{"Mercury", "Mercury (planet)"}, f.summaries)
}

func TestSummaryNotFound(t *testing.T) {
	c := newClient(&fakeWiki{search: map[string][]string{"only": {"Only"}}})

	for _, q := range []string{"", "   ", "nothing matches", "only"} {
		_, err := c.Summary(context.Background(), q)
		assert.ErrorIs(t, err, ErrNotFound, q)
	}
}

func TestSummarySearchError(t *testing.T) {
	c := newClient(&fakeWiki{searchErr: errors.New("offline")})

	_, err := c.Summary(context.Background(), "gopher")
	assert.ErrorContains(t, err, "offline")
}

func TestSummaryTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := func(query string, limit int) ([]string, error) {
		<-release
		return nil, nil
	}
	c := NewClient(WithBackend(slow, nil), WithTimeout(10*time.Millisecond))

	_, err := c.Summary(context.Background(), "gopher")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSummaryBlankPageIsSkipped(t *testing.T) {
	f := &fakeWiki{
		search: map[string][]string{"go": {"Go", "Go (programming language)"}},
		pages:  map[string]string{"Go": "  ", "Go (programming language)": "Go is a programming language."},
	}

	got, err := newClient(f).Summary(context.Background(), "go")
	require.NoError(t, err)
	assert.Contains(t, got, "(Go (programming language))")
}
