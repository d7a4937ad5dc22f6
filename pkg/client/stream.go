package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

// Message types on the streaming endpoint.
const (
	MessageStream = "stream"
	MessageAnswer = "answer"
	MessageError  = "error"
)

// StreamMessage is one frame sent back by the streaming endpoint: any number
// of "stream" pieces, then exactly one "answer" or "error".
type StreamMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// StreamURL maps the ask endpoint onto the websocket streaming endpoint of
// the same backend.
func StreamURL(askURL string) (string, error) {
	u, err := url.Parse(askURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend scheme %q", u.Scheme)
	}
	u.Path = "/ws/ask"
	u.RawQuery = ""
	return u.String(), nil
}

// AskStream sends q over the streaming endpoint and hands every piece of
// the answer to onChunk. The returned Answer is the final one, which may
// differ from the streamed text when the backend fell back to another source.
func (c *Client) AskStream(ctx context.Context, q Query, onChunk func(string)) (Answer, error) {
	wsURL, err := StreamURL(c.url)
	if err != nil {
		return Answer{}, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return Answer{}, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteJSON(q); err != nil {
		return Answer{}, err
	}

	for {
		var msg StreamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return Answer{}, err
		}
		switch msg.Type {
		case MessageStream:
			if onChunk != nil {
				onChunk(msg.Content)
			}
		case MessageAnswer:
			return Answer{Answer: msg.Content}, nil
		case MessageError:
			return Answer{Error: msg.Content}, nil
		}
	}
}
