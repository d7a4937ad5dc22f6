package types

import (
	"context"

	"github.com/xhad/tubeqa/internal/models"
)

// Core interfaces
type VectorStore interface {
	HasVideo(ctx context.Context, videoID string) (bool, error)
	Store(ctx context.Context, doc models.ProcessedDocument) error
	Query(ctx context.Context, videoID string, embedding []float32, limit int) ([]models.Chunk, error)
	Close()
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type Processor interface {
	Process(docs []models.Document) ([]models.ProcessedDocument, error)
}
