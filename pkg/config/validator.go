package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if !isHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 1",
		})
	}

	// Validate Database config
	if c.Database.URL != "" {
		if u, err := url.Parse(c.Database.URL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	// Validate caption polling
	if c.Captions.MaxAttempts < 0 {
		errors = append(errors, ValidationError{
			Field:   "captions.max_attempts",
			Message: "max_attempts must not be negative",
		})
	}

	if c.Captions.Interval <= 0 {
		errors = append(errors, ValidationError{
			Field:   "captions.interval",
			Message: "interval must be positive",
		})
	}

	if c.Captions.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "captions.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if !isHTTPURL(c.Captions.WatchURL) {
		errors = append(errors, ValidationError{
			Field:   "captions.watch_url",
			Message: "invalid watch page URL",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Server.SearchLimit < 1 {
		errors = append(errors, ValidationError{
			Field:   "server.search_limit",
			Message: "search_limit must be positive",
		})
	}

	if !isHTTPURL(c.Client.BackendURL) {
		errors = append(errors, ValidationError{
			Field:   "client.backend_url",
			Message: "invalid backend URL",
		})
	}

	if c.Client.MinTranscriptLength < 0 {
		errors = append(errors, ValidationError{
			Field:   "client.min_transcript_length",
			Message: "min_transcript_length must not be negative",
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
