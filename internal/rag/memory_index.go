package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// embedBatchSize bounds how many chunks are sent to the embedder at once.
const embedBatchSize = 64

// MemoryIndex is an immutable in-memory vector index searched by brute-force
// cosine similarity.
type MemoryIndex struct {
	chunks  []Chunk
	vectors [][]float32
}

// NewMemoryIndex pairs chunks with their vectors. Both slices must have the same length.
func NewMemoryIndex(chunks []Chunk, vectors [][]float32) (*MemoryIndex, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	return &MemoryIndex{chunks: chunks, vectors: vectors}, nil
}

// BuildIndex embeds the chunks in batches and returns the resulting index.
// An empty chunk list yields an empty index.
func BuildIndex(ctx context.Context, embedder Embedder, chunks []Chunk) (*MemoryIndex, error) {
	vectors := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}
		batch, err := embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		if len(batch) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(batch), len(texts))
		}
		vectors = append(vectors, batch...)
	}
	return NewMemoryIndex(chunks, vectors)
}

// Len returns the number of indexed chunks.
func (idx *MemoryIndex) Len() int {
	return len(idx.chunks)
}

// Search returns up to topK hits ordered by descending score. Equal scores keep
// corpus order.
func (idx *MemoryIndex) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 || len(idx.chunks) == 0 {
		return nil, nil
	}

	hits := make([]Hit, len(idx.chunks))
	for i, c := range idx.chunks {
		hits[i] = Hit{Chunk: c, Score: CosineSimilarity(vector, idx.vectors[i])}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// CosineSimilarity returns the cosine of two vectors clamped to [0,1].
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}
