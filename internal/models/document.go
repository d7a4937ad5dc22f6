package models

// Document is one video transcript as it enters the indexing pipeline.
type Document struct {
	ID       string // video id, or a content hash for bare transcripts
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

type ProcessedDocument struct {
	Document
	Chunks    []string
	Embedding [][]float32
}

// Chunk is a stored transcript fragment returned by a similarity query.
type Chunk struct {
	VideoID  string
	Index    int
	Content  string
	Distance float32
}
