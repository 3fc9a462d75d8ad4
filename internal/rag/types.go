package rag

import (
	"context"

	"github.com/upb/sme-plug/models"
)

// Retriever fetches the passages of a persona's corpus most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, personaID string, topK int) ([]models.RetrievalResult, error)
	Invalidate(personaID string)
}

// Embedder generates vector embeddings for a batch of texts.
// The returned slice has one vector per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is a searchable set of embedded chunks.
type Index interface {
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)
	Len() int
}

// Chunk is one retrievable unit of a corpus file.
type Chunk struct {
	NodeID   string
	Filename string
	Page     int
	Title    string
	Content  string
}

// Passage converts the chunk to the model type handed to generation.
func (c Chunk) Passage() models.Passage {
	return models.Passage{
		Filename: c.Filename,
		Page:     c.Page,
		Title:    c.Title,
		Content:  c.Content,
		NodeID:   c.NodeID,
	}
}

// Hit is a chunk with its similarity score in [0,1].
type Hit struct {
	Chunk Chunk
	Score float64
}
