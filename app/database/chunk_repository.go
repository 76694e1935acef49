package database

import (
	"context"
	"fmt"
)

// ChunkRepo reads embedded chunks. Writes go through QueueRepo.MarkEmbedSuccess.
type ChunkRepo struct {
	db *DB
}

func NewChunkRepository(db *DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

// Nearest returns up to k chunks ordered by ascending cosine distance to
// query. The scan is exact over every stored chunk.
func (r *ChunkRepo) Nearest(ctx context.Context, query []float32, k int) ([]ChunkMatch, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrValidation)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, link_id, chunk_index, content, distance
		FROM (
			SELECT id, link_id, chunk_index, content, `+DistanceFunction+`(embedding, ?) AS distance
			FROM link_embedding_chunks
		)
		WHERE distance IS NOT NULL
		ORDER BY distance, id
		LIMIT ?`,
		EncodeEmbedding(query), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest chunks: %w", err)
	}
	defer rows.Close()

	var matches []ChunkMatch
	for rows.Next() {
		var m ChunkMatch
		if err := rows.Scan(&m.ID, &m.LinkID, &m.ChunkIndex, &m.Content, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// ForLink returns the chunks of a link in chunk order.
func (r *ChunkRepo) ForLink(ctx context.Context, linkID int64) ([]Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT content, embedding
		FROM link_embedding_chunks
		WHERE link_id = ?
		ORDER BY chunk_index`, linkID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks of link %d: %w", linkID, err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.Content, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if c.Embedding, err = DecodeEmbedding(blob); err != nil {
			return nil, fmt.Errorf("failed to decode chunk of link %d: %w", linkID, err)
		}
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}
