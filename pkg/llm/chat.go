package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/tubeqa/internal/models"
)

var ErrEmptyResponse = errors.New("no response from LLM")

const (
	DefaultSystemTemplate  = "You answer questions about a YouTube video using only excerpts of its transcript. If the excerpts do not contain the answer, say you don't know."
	DefaultContextTemplate = "Transcript excerpts:\n%s\n\nQuestion: %s"
	SummaryQuestion        = "Briefly summarize the main topic or content of this video. Only use the transcript excerpts, do NOT speculate. Answer in English, in 2-4 sentences."
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model           string
	Temperature     float64
	MaxTokens       int
	SystemTemplate  string
	ContextTemplate string
	BaseURL         string // Ollama server URL
}

// Turn is one earlier question and its answer in a conversation.
type Turn struct {
	Question string
	Answer   string
}

// ChatEngine is an engine that uses an LLM to answer from transcript chunks.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine backed by Ollama.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return NewWithModel(config, llm)
}

// NewWithModel wraps an already built model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	if config.Temperature < 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 512
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = DefaultSystemTemplate
	}
	if config.ContextTemplate == "" {
		config.ContextTemplate = DefaultContextTemplate
	}

	return &ChatEngine{
		config: config,
		llm:    model,
	}, nil
}

// Chat answers question from the given chunks, continuing history.
func (ce *ChatEngine) Chat(ctx context.Context, question string, chunks []models.Chunk, history []Turn) (string, error) {
	return ce.generate(ctx, ce.messages(question, chunks, history))
}

// ChatStream is Chat with every generated piece passed to onChunk as it
// arrives. The full answer is still returned.
func (ce *ChatEngine) ChatStream(ctx context.Context, question string, chunks []models.Chunk, history []Turn, onChunk func(string)) (string, error) {
	return ce.generate(ctx, ce.messages(question, chunks, history),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if onChunk != nil && len(chunk) > 0 {
				onChunk(string(chunk))
			}
			return nil
		}),
	)
}

func (ce *ChatEngine) generate(ctx context.Context, messages []llms.MessageContent, extra ...llms.CallOption) (string, error) {
	options := append([]llms.CallOption{
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	}, extra...)

	response, err := ce.llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", ErrEmptyResponse
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}

func (ce *ChatEngine) messages(question string, chunks []models.Chunk, history []Turn) []llms.MessageContent {
	var contextBuilder strings.Builder
	for _, c := range chunks {
		contextBuilder.WriteString(c.Content)
		contextBuilder.WriteString("\n\n")
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, ce.config.SystemTemplate),
	}
	for _, turn := range history {
		content = append(content,
			llms.TextParts(llms.ChatMessageTypeHuman, turn.Question),
			llms.TextParts(llms.ChatMessageTypeAI, turn.Answer),
		)
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman,
		fmt.Sprintf(ce.config.ContextTemplate, strings.TrimSpace(contextBuilder.String()), question)))

	return content
}
