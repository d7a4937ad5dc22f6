package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/tubeqa/internal/models"
)

// MemoryStore is an in-process vector store used when no database is
// configured.
type MemoryStore struct {
	mu     sync.RWMutex
	videos map[string][]memoryChunk
}

type memoryChunk struct {
	content   string
	embedding []float32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{videos: make(map[string][]memoryChunk)}
}

func (m *MemoryStore) HasVideo(ctx context.Context, videoID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.videos[videoID]) > 0, nil
}

func (m *MemoryStore) Store(ctx context.Context, doc models.ProcessedDocument) error {
	if len(doc.Chunks) != len(doc.Embedding) {
		return fmt.Errorf("document %s has %d chunks but %d embeddings", doc.ID, len(doc.Chunks), len(doc.Embedding))
	}

	chunks := make([]memoryChunk, len(doc.Chunks))
	for i, c := range doc.Chunks {
		chunks[i] = memoryChunk{content: c, embedding: doc.Embedding[i]}
	}

	m.mu.Lock()
	m.videos[doc.ID] = chunks
	m.mu.Unlock()
	return nil
}

// Query ranks the chunks of videoID by cosine distance.
func (m *MemoryStore) Query(ctx context.Context, videoID string, embedding []float32, limit int) ([]models.Chunk, error) {
	m.mu.RLock()
	stored := m.videos[videoID]
	m.mu.RUnlock()

	out := make([]models.Chunk, 0, len(stored))
	for i, c := range stored {
		out = append(out, models.Chunk{
			VideoID:  videoID,
			Index:    i,
			Content:  c.content,
			Distance: cosineDistance(embedding, c.embedding),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Close() {}

func cosineDistance(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}
