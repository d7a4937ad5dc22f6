package processor

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/xhad/tubeqa/internal/models"
)

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

type Processor struct {
	config   ProcessorConfig
	splitter textsplitter.RecursiveCharacter
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if len(config.Separators) == 0 {
		config.Separators = []string{"\n\n", "\n", ". ", " ", ""}
	}

	return Processor{
		config: config,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(config.ChunkSize),
			textsplitter.WithChunkOverlap(config.ChunkOverlap),
			textsplitter.WithSeparators(config.Separators),
		),
	}
}

func (p *Processor) Process(docs []models.Document) ([]models.ProcessedDocument, error) {
	var processed []models.ProcessedDocument

	for _, doc := range docs {
		chunks, err := p.splitter.SplitText(CleanTranscript(doc.Content))
		if err != nil {
			return nil, fmt.Errorf("failed to split document %s: %w", doc.ID, err)
		}

		processed = append(processed, models.ProcessedDocument{
			Document: doc,
			Chunks:   nonEmpty(chunks),
		})
	}

	return processed, nil
}

// CleanTranscript joins caption lines into running text.
func CleanTranscript(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func nonEmpty(chunks []string) []string {
	out := chunks[:0]
	for _, c := range chunks {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
