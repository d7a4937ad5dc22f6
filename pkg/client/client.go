package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBackendURL = "http://localhost:8080/api/ask"

var (
	ErrNoVideo          = errors.New("Please open a YouTube video and reload.")
	ErrNoQuestion       = errors.New("Please enter a question.")
	ErrTranscriptNotSet = errors.New("Transcript not loaded yet. Please wait or reload the video.")
)

// Query is the payload sent to the backend.
type Query struct {
	VideoURL   string `json:"video_url,omitempty"`
	Question   string `json:"question"`
	Transcript string `json:"transcript,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// Answer is the backend response; exactly one field is expected.
type Answer struct {
	Answer string `json:"answer,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Client posts questions to the question-answering backend.
type Client struct {
	url        string
	httpClient *http.Client
}

type Option func(*Client)

func WithURL(u string) Option {
	return func(c *Client) {
		c.url = u
	}
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpClient = h
	}
}

func New(opts ...Option) *Client {
	c := &Client{url: DefaultBackendURL}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return c
}

// Ask sends q and decodes the backend's answer. A backend error field is
// returned inside Answer, not as err.
func (c *Client) Ask(ctx context.Context, q Query) (Answer, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return Answer{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Answer{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Answer{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Answer{}, err
	}

	var ans Answer
	if err := json.Unmarshal(data, &ans); err != nil {
		return Answer{}, fmt.Errorf("backend returned status %d with unreadable body: %w", resp.StatusCode, err)
	}
	return ans, nil
}

// Validate checks user input before anything is sent. minTranscript of zero
// disables the transcript check.
func Validate(q Query, minTranscript int) error {
	if strings.TrimSpace(q.VideoURL) == "" && strings.TrimSpace(q.Transcript) == "" {
		return ErrNoVideo
	}
	if strings.TrimSpace(q.Question) == "" {
		return ErrNoQuestion
	}
	if minTranscript > 0 && q.VideoURL == "" && len(strings.TrimSpace(q.Transcript)) < minTranscript {
		return ErrTranscriptNotSet
	}
	return nil
}

// Display turns a backend round trip into the text shown to the user.
func Display(ans Answer, err error) string {
	switch {
	case err != nil:
		return "Error: " + err.Error()
	case ans.Answer != "":
		return ans.Answer
	case ans.Error != "":
		return "Error: " + ans.Error
	default:
		return "No answer returned."
	}
}
