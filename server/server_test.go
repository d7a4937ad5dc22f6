package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tubeqa/pkg/captions"
	"github.com/xhad/tubeqa/pkg/client"
	"github.com/xhad/tubeqa/pkg/qa"
	"github.com/xhad/tubeqa/pkg/relay"
	"github.com/xhad/tubeqa/pkg/transcript"
)

type fakeEngine struct {
	mu     sync.Mutex
	inputs []qa.Input
	answer string
	err    error
}

func (f *fakeEngine) Ask(ctx context.Context, in qa.Input) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return "", f.err
	}
	if strings.TrimSpace(in.Question) == "" {
		return "", qa.ErrMissingInput
	}
	if in.OnToken != nil {
		for _, piece := range strings.SplitAfter(f.answer, " ") {
			in.OnToken(piece)
		}
	}
	return f.answer, nil
}

func (f *fakeEngine) seen() []qa.Input {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]qa.Input(nil), f.inputs...)
}

type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func newTestServer(t *testing.T, engine Asker) *httptest.Server {
	t.Helper()

	timedText := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<transcript><text>Never gonna</text><text>give you up</text></transcript>`))
	}))
	t.Cleanup(timedText.Close)

	source := func(req relay.Request) (captions.StateSource, error) {
		if req.VideoURL == "" {
			return nil, errors.New("no url")
		}
		return captions.StateFunc(func(ctx context.Context) (json.RawMessage, error) {
			return json.RawMessage(fmt.Sprintf(
				`{"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[{"languageCode":"en","baseUrl":%q}]}}}`,
				timedText.URL)), nil
		}), nil
	}

	r := relay.New(transcript.NewFetcher(), relay.WithPolling(2, time.Millisecond), relay.WithClock(instantClock{}))
	srv := New(Config{Streaming: true}, engine, r, source)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body string) (*http.Response, client.Answer) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var ans client.Answer
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ans))
	return resp, ans
}

func TestRoot(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "ok", "message": "Backend running."}, body)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAskEndpoints(t *testing.T) {
	engine := &fakeEngine{answer: "It is about gophers."}
	ts := newTestServer(t, engine)

	for _, path := range []string{"/api/ask", "/api/ask-transcript"} {
		resp, ans := postJSON(t, ts.URL+path, `{"video_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ","question":"What?","session_id":"abc"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "It is about gophers.", ans.Answer, path)
		assert.Empty(t, ans.Error, path)
	}

	require.Len(t, engine.seen(), 2)
	assert.Equal(t, "abc", engine.seen()[0].SessionID)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", engine.seen()[0].VideoURL)
}

func TestAskAssignsSession(t *testing.T) {
	engine := &fakeEngine{answer: "ok"}
	ts := newTestServer(t, engine)

	postJSON(t, ts.URL+"/api/ask", `{"transcript":"some text","question":"q"}`)
	require.Len(t, engine.seen(), 1)
	assert.NotEmpty(t, engine.seen()[0].SessionID)
	assert.Equal(t, "some text", engine.seen()[0].Transcript)
}

func TestAskMissingInputIsAnswerError(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{})

	resp, ans := postJSON(t, ts.URL+"/api/ask", `{"video_url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Missing video_url and/or transcript/question.", ans.Error)
	assert.Empty(t, ans.Answer)
}

func TestAskBadJSON(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{})

	resp, ans := postJSON(t, ts.URL+"/api/ask", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, ans.Error)
}

func TestAskEngineFailure(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{err: errors.New("store offline")})

	resp, ans := postJSON(t, ts.URL+"/api/ask", `{"video_url":"u","question":"q"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "store offline", ans.Error)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/ask", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "chrome-extension://abcdef")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketRelay(t *testing.T) {
	ts := newTestServer(t, &fakeEngine{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(relay.Request{
		Action:   relay.ActionGetTranscript,
		VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	}))
	var resp relay.Response
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "Never gonna\ngive you up", resp.Transcript)

	require.NoError(t, conn.WriteJSON(relay.Request{Action: "somethingElse"}))
	resp = relay.Response{Transcript: "stale"}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Empty(t, resp.Transcript)

	require.NoError(t, conn.WriteJSON(relay.Request{Action: relay.ActionGetTranscript}))
	resp = relay.Response{Transcript: "stale"}
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Empty(t, resp.Transcript)
}

func TestAskStream(t *testing.T) {
	engine := &fakeEngine{answer: "It is about gophers."}
	ts := newTestServer(t, engine)

	c := client.New(client.WithURL(ts.URL + "/api/ask"))
	var pieces []string
	ans, err := c.AskStream(context.Background(), client.Query{
		VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Question: "What?",
	}, func(s string) { pieces = append(pieces, s) })
	require.NoError(t, err)
	assert.Equal(t, "It is about gophers.", ans.Answer)
	assert.Equal(t, []string{"It ", "is ", "about ", "gophers."}, pieces)

	ans, err = c.AskStream(context.Background(), client.Query{VideoURL: "u"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Missing video_url and/or transcript/question.", ans.Error)

	require.Len(t, engine.seen(), 2)
	assert.NotEmpty(t, engine.seen()[0].SessionID)
}

func TestAskStreamDisabled(t *testing.T) {
	srv := New(Config{}, &fakeEngine{}, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ws/ask")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
