package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/xhad/tubeqa/pkg/client"
	"github.com/xhad/tubeqa/pkg/qa"
	"github.com/xhad/tubeqa/pkg/relay"
)

// Asker is the question-answering engine behind the HTTP API.
type Asker interface {
	Ask(ctx context.Context, in qa.Input) (string, error)
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	AskTimeout     time.Duration
	// Streaming enables /ws/ask, which streams answers as they are generated.
	Streaming bool
}

// Server exposes the engine over HTTP and the transcript relay over a
// websocket.
type Server struct {
	config   Config
	engine   Asker
	relay    *relay.Relay
	source   relay.SourceFunc
	upgrader websocket.Upgrader
	router   chi.Router
}

func New(config Config, engine Asker, r *relay.Relay, source relay.SourceFunc) *Server {
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}
	if config.AskTimeout <= 0 {
		config.AskTimeout = 2 * time.Minute
	}

	s := &Server{
		config: config,
		engine: engine,
		relay:  r,
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Post("/api/ask", s.handleAsk)
	r.Post("/api/ask-transcript", s.handleAsk)
	if s.relay != nil && s.source != nil {
		r.Get("/ws", s.handleWebSocket)
	}
	if s.config.Streaming {
		r.Get("/ws/ask", s.handleAskStream)
	}
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server: listening", slog.String("addr", s.config.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Backend running.",
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var q client.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeJSON(w, http.StatusBadRequest, client.Answer{Error: "invalid JSON body"})
		return
	}

	session := q.SessionID
	if session == "" {
		session = uuid.New().String()
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.AskTimeout)
	defer cancel()

	answer, err := s.engine.Ask(ctx, qa.Input{
		VideoURL:   q.VideoURL,
		Question:   q.Question,
		Transcript: q.Transcript,
		SessionID:  session,
	})
	switch {
	case errors.Is(err, qa.ErrMissingInput):
		writeJSON(w, http.StatusOK, client.Answer{Error: err.Error()})
	case err != nil:
		slog.Error("server: ask failed",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, client.Answer{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, client.Answer{Answer: answer})
	}
}

// handleWebSocket serves relay requests: one Response per Request, in
// arrival order per connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	for {
		var req relay.Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("server: websocket read ended", slog.Any("error", err))
			}
			return
		}

		resp := <-s.relay.Handle(r.Context(), req, s.source)
		if err := conn.WriteJSON(resp); err != nil {
			slog.Warn("server: websocket write failed", slog.Any("error", err))
			return
		}
	}
}

// handleAskStream answers queries over a websocket, one at a time, sending
// the generated answer piece by piece before the final message.
func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("server: websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	session := uuid.New().String()
	for {
		var q client.Query
		if err := conn.ReadJSON(&q); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("server: stream read ended", slog.Any("error", err))
			}
			return
		}
		if q.SessionID == "" {
			q.SessionID = session
		}

		var writeErr error
		send := func(msgType, content string) {
			if writeErr != nil {
				return
			}
			writeErr = conn.WriteJSON(client.StreamMessage{Type: msgType, Content: content})
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.AskTimeout)
		answer, err := s.engine.Ask(ctx, qa.Input{
			VideoURL:   q.VideoURL,
			Question:   q.Question,
			Transcript: q.Transcript,
			SessionID:  q.SessionID,
			OnToken: func(piece string) {
				send(client.MessageStream, piece)
			},
		})
		cancel()

		if err != nil {
			slog.Warn("server: streamed ask failed", slog.Any("error", err))
			send(client.MessageError, err.Error())
		} else {
			send(client.MessageAnswer, answer)
		}
		if writeErr != nil {
			slog.Warn("server: websocket write failed", slog.Any("error", writeErr))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("server: encode response", slog.Any("error", err))
	}
}
