package store

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/tubeqa/internal/models"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type VectorStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	SearchLimit int
}

// PGVectorStore keeps one row per transcript chunk in Postgres.
type PGVectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*PGVectorStore, error) {
	if config.TableName == "" {
		config.TableName = "transcript_chunks"
	}
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 4
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PGVectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PGVectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			url TEXT,
			title TEXT,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB
		)`, vs.config.TableName, vs.config.VectorDim)

	if _, err = vs.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createVideoIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_video_idx ON %s (video_id)`,
		vs.config.TableName, vs.config.TableName)
	if _, err = vs.pool.Exec(ctx, createVideoIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		vs.config.TableName, vs.config.TableName)

	if _, err = vs.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func (vs *PGVectorStore) HasVideo(ctx context.Context, videoID string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE video_id = $1)`, vs.config.TableName)
	if err := vs.pool.QueryRow(ctx, query, videoID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to look up video: %w", err)
	}
	return exists, nil
}

// Store writes every chunk of doc with its embedding in one transaction.
func (vs *PGVectorStore) Store(ctx context.Context, doc models.ProcessedDocument) error {
	if len(doc.Chunks) != len(doc.Embedding) {
		return fmt.Errorf("document %s has %d chunks but %d embeddings", doc.ID, len(doc.Chunks), len(doc.Embedding))
	}

	tx, err := vs.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, video_id, url, title, chunk_index, content, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		vs.config.TableName)

	cleanTitle := sanitizeUTF8(doc.Title)
	for i, chunk := range doc.Chunks {
		_, err = tx.Exec(ctx, stmt,
			fmt.Sprintf("%s_%d", doc.ID, i),
			doc.ID,
			doc.URL,
			cleanTitle,
			i,
			sanitizeUTF8(chunk),
			pgvector.NewVector(doc.Embedding[i]),
			doc.Metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Query returns the chunks of videoID closest to queryEmbedding.
func (vs *PGVectorStore) Query(ctx context.Context, videoID string, queryEmbedding []float32, limit int) ([]models.Chunk, error) {
	if limit == 0 {
		limit = vs.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT video_id, chunk_index, content, embedding <=> $2 AS distance
		FROM %s
		WHERE video_id = $1
		ORDER BY distance
		LIMIT $3`,
		vs.config.TableName)

	rows, err := vs.pool.Query(ctx, query, videoID, pgvector.NewVector(queryEmbedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var c models.Chunk
		var distance float64
		if err := rows.Scan(&c.VideoID, &c.Index, &c.Content, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Distance = float32(distance)
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}

func (vs *PGVectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes Postgres would reject.
func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
