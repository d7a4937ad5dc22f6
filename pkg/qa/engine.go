package qa

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/xhad/tubeqa/internal/models"
	"github.com/xhad/tubeqa/internal/types"
	"github.com/xhad/tubeqa/pkg/captions"
	"github.com/xhad/tubeqa/pkg/llm"
)

var (
	ErrMissingInput = errors.New("Missing video_url and/or transcript/question.")
	ErrNoTranscript = errors.New("no transcript available")
)

// Input is one question about one video.
type Input struct {
	VideoURL   string
	Question   string
	Transcript string
	SessionID  string

	// OnToken, when set, receives the model's answer as it is generated.
	// Fallback answers are not streamed.
	OnToken func(string)
}

// Chatter answers from retrieved chunks.
type Chatter interface {
	Chat(ctx context.Context, question string, chunks []models.Chunk, history []llm.Turn) (string, error)
}

// StreamChatter is a Chatter that can also stream its answer.
type StreamChatter interface {
	ChatStream(ctx context.Context, question string, chunks []models.Chunk, history []llm.Turn, onChunk func(string)) (string, error)
}

// TranscriptSource fetches what the caller did not send.
type TranscriptSource interface {
	Transcript(ctx context.Context, videoURL string) (string, error)
	Title(ctx context.Context, videoURL string) (string, error)
}

// Encyclopedia provides the fallback summaries.
type Encyclopedia interface {
	Summary(ctx context.Context, query string) (string, error)
}

type Config struct {
	SearchLimit int
}

// Engine answers questions about videos: transcript retrieval first, then
// Wikipedia, then web search links.
type Engine struct {
	config    Config
	store     types.VectorStore
	embedder  types.Embedder
	processor types.Processor
	chat      Chatter
	source    TranscriptSource // may be nil
	wiki      Encyclopedia     // may be nil
	memory    *Memory

	indexing singleflight.Group
}

type Deps struct {
	Store     types.VectorStore
	Embedder  types.Embedder
	Processor types.Processor
	Chat      Chatter
	Source    TranscriptSource
	Wiki      Encyclopedia
	Memory    *Memory
}

func NewEngine(config Config, deps Deps) (*Engine, error) {
	if deps.Store == nil || deps.Embedder == nil || deps.Processor == nil || deps.Chat == nil {
		return nil, errors.New("qa engine needs a store, an embedder, a processor and a chat model")
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = 4
	}
	if deps.Memory == nil {
		deps.Memory = NewMemory(0)
	}
	return &Engine{
		config:    config,
		store:     deps.Store,
		embedder:  deps.Embedder,
		processor: deps.Processor,
		chat:      deps.Chat,
		source:    deps.Source,
		wiki:      deps.Wiki,
		memory:    deps.Memory,
	}, nil
}

// Ask always produces a displayable answer unless the input is invalid.
func (e *Engine) Ask(ctx context.Context, in Input) (string, error) {
	in.Question = strings.TrimSpace(in.Question)
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	if in.Question == "" || (strings.TrimSpace(in.Transcript) == "" && in.VideoURL == "") {
		return "", ErrMissingInput
	}
	if in.SessionID == "" {
		in.SessionID = DefaultSession
	}

	fallbackToTitle := false
	answer, err := e.answerFromTranscript(ctx, in)
	switch {
	case err != nil:
		slog.Warn("qa: transcript-based answer failed", slog.String("video_url", in.VideoURL), slog.Any("error", err))
		fallbackToTitle = true
	case !IsIncomplete(answer):
		e.memory.Append(in.SessionID, llm.Turn{Question: in.Question, Answer: answer})
		return answer, nil
	default:
		slog.Debug("qa: transcript answer too vague", slog.String("answer", answer))
	}

	if fallbackToTitle && in.VideoURL != "" && e.source != nil {
		title, err := e.source.Title(ctx, in.VideoURL)
		if err != nil {
			slog.Warn("qa: could not fetch video title", slog.Any("error", err))
		}
		search := title
		if search == "" {
			search = in.Question
		}
		ans := e.lookup(ctx, search)
		if ans == "" && title != "" {
			if short := TitleTopic(title); short != search {
				ans = e.lookup(ctx, short)
			}
		}
		if ans != "" {
			return ans, nil
		}
	}

	if ans := e.lookup(ctx, in.Question); ans != "" {
		return ans, nil
	}
	if topic := QuestionTopic(in.Question); topic != in.Question {
		if ans := e.lookup(ctx, topic); ans != "" {
			return ans, nil
		}
	}

	return WebSearchLinks(in.Question), nil
}

// lookup returns a usable encyclopedia answer or "".
func (e *Engine) lookup(ctx context.Context, query string) string {
	if e.wiki == nil || strings.TrimSpace(query) == "" {
		return ""
	}
	ans, err := e.wiki.Summary(ctx, query)
	if err != nil {
		slog.Debug("qa: wikipedia lookup failed", slog.String("query", query), slog.Any("error", err))
		return ""
	}
	if IsIncomplete(ans) {
		return ""
	}
	return ans
}

func (e *Engine) answerFromTranscript(ctx context.Context, in Input) (string, error) {
	id := documentID(in)
	if err := e.ensureIndexed(ctx, id, in); err != nil {
		return "", err
	}

	question := in.Question
	if IsSummaryQuestion(question) {
		question = llm.SummaryQuestion
	}

	vectors, err := e.embedder.CreateEmbedding(ctx, []string{question})
	if err != nil {
		return "", err
	}
	if len(vectors) == 0 {
		return "", errors.New("no embedding for question")
	}

	chunks, err := e.store.Query(ctx, id, vectors[0], e.config.SearchLimit)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", ErrNoTranscript
	}

	history := e.memory.History(in.SessionID)
	if in.OnToken != nil {
		if streamer, ok := e.chat.(StreamChatter); ok {
			return streamer.ChatStream(ctx, question, chunks, history, in.OnToken)
		}
	}
	return e.chat.Chat(ctx, question, chunks, history)
}

// ensureIndexed stores the transcript of id once; concurrent callers for
// the same id share one indexing run.
func (e *Engine) ensureIndexed(ctx context.Context, id string, in Input) error {
	_, err, _ := e.indexing.Do(id, func() (interface{}, error) {
		has, err := e.store.HasVideo(ctx, id)
		if err != nil {
			return nil, err
		}
		if has {
			return nil, nil
		}

		text := in.Transcript
		if strings.TrimSpace(text) == "" && in.VideoURL != "" && e.source != nil {
			if text, err = e.source.Transcript(ctx, in.VideoURL); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrNoTranscript, err)
			}
		}
		if strings.TrimSpace(text) == "" {
			return nil, ErrNoTranscript
		}

		var title string
		if in.VideoURL != "" && e.source != nil {
			if title, err = e.source.Title(ctx, in.VideoURL); err != nil {
				slog.Debug("qa: indexing without title", slog.Any("error", err))
			}
		}

		processed, err := e.processor.Process([]models.Document{{
			ID:       id,
			URL:      in.VideoURL,
			Title:    title,
			Content:  text,
			Metadata: map[string]interface{}{"source": "captions"},
		}})
		if err != nil {
			return nil, err
		}
		doc := processed[0]
		if len(doc.Chunks) == 0 {
			return nil, ErrNoTranscript
		}

		doc.Embedding, err = e.embedder.CreateEmbedding(ctx, doc.Chunks)
		if err != nil {
			return nil, err
		}

		if err := e.store.Store(ctx, doc); err != nil {
			return nil, err
		}
		slog.Info("qa: indexed transcript", slog.String("id", id), slog.Int("chunks", len(doc.Chunks)))
		return nil, nil
	})
	return err
}

// documentID keys the store by video id, or by content for bare transcripts.
func documentID(in Input) string {
	if id, err := captions.ExtractVideoID(in.VideoURL); err == nil {
		return id
	}
	sum := sha256.Sum256([]byte(in.Transcript))
	return fmt.Sprintf("transcript-%x", sum[:8])
}
