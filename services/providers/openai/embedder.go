package openai

import (
	"context"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/upb/sme-plug/services/providers"
)

const defaultEmbeddingModel = "text-embedding-3-small"

// Embedder produces embeddings through the OpenAI embeddings endpoint.
// It satisfies rag.Embedder.
type Embedder struct {
	client *goopenai.Client
	model  string
}

// NewEmbedder creates an embedder for the given model.
func NewEmbedder(config providers.ProviderConfig, model string) *Embedder {
	if config.BaseURL == "" {
		config.BaseURL = defaultOpenAIBaseURL
	}
	if model == "" {
		model = defaultEmbeddingModel
	}
	return &Embedder{
		client: newClient(config),
		model:  model,
	}
}

// Embed returns one vector per text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequestStrings{
		Input: texts,
		Model: goopenai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
