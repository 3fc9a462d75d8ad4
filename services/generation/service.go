// Package generation turns a query and its grounding passages into a model
// response through a chat completion provider.
package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/services/providers"
)

// Generator produces grounded and ungrounded answers.
type Generator interface {
	Generate(ctx context.Context, query string, passages []models.Passage, systemPrompt string) (string, time.Duration, error)
	GenerateVanilla(ctx context.Context, query string) (string, time.Duration, error)
}

// Options holds sampling parameters for both generation modes.
type Options struct {
	Model              string
	Temperature        float32
	MaxTokens          int
	VanillaTemperature float32
	VanillaMaxTokens   int
}

// DefaultOptions returns low-temperature grounded generation and a looser vanilla mode.
func DefaultOptions() Options {
	return Options{
		Temperature:        0.1,
		MaxTokens:          2048,
		VanillaTemperature: 0.7,
		VanillaMaxTokens:   1024,
	}
}

const noDocuments = "No relevant documents found."

var separator = strings.Repeat("=", 60)

// Service implements Generator over a providers.Provider.
type Service struct {
	provider providers.Provider
	opts     Options
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// NewService creates a generation service. metrics may be nil.
func NewService(provider providers.Provider, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		provider: provider,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Generate answers the query from the passages under the given system prompt.
func (s *Service) Generate(ctx context.Context, query string, passages []models.Passage, systemPrompt string) (string, time.Duration, error) {
	req := &providers.ChatRequest{
		Model: s.opts.Model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: systemPrompt},
			{Role: providers.RoleUser, Content: BuildPrompt(query, passages)},
		},
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}
	return s.complete(ctx, req, "grounded")
}

// GenerateVanilla answers the raw query with no persona context or grounding.
func (s *Service) GenerateVanilla(ctx context.Context, query string) (string, time.Duration, error) {
	req := &providers.ChatRequest{
		Model: s.opts.Model,
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: BuildVanillaPrompt(query)},
		},
		MaxTokens:   s.opts.VanillaMaxTokens,
		Temperature: s.opts.VanillaTemperature,
	}
	return s.complete(ctx, req, "vanilla")
}

func (s *Service) complete(ctx context.Context, req *providers.ChatRequest, mode string) (string, time.Duration, error) {
	start := time.Now()
	resp, err := s.provider.ChatCompletion(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.RecordLLMRequest(s.provider.Name(), "error", elapsed)
		s.logger.Error("chat completion failed",
			zap.String("provider", s.provider.Name()),
			zap.String("mode", mode),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return "", elapsed, fmt.Errorf("%s generation: %w", mode, err)
	}

	s.metrics.RecordLLMRequest(s.provider.Name(), "ok", elapsed)
	s.logger.Debug("chat completion finished",
		zap.String("provider", s.provider.Name()),
		zap.String("mode", mode),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", elapsed),
	)
	return resp.Content(), elapsed, nil
}

// BuildPrompt renders the retrieved passages and the citation instructions
// around the user question.
func BuildPrompt(query string, passages []models.Passage) string {
	docs := make([]string, 0, len(passages))
	for i, p := range passages {
		docs = append(docs, fmt.Sprintf(
			"--- Document %d ---\nFile: %s\nPage: %d\nSection: %s\nContent:\n%s\n",
			i+1, p.Filename, p.Page, p.Title, p.Content,
		))
	}
	block := noDocuments
	if len(docs) > 0 {
		block = strings.Join(docs, "\n")
	}

	var b strings.Builder
	b.WriteString("RETRIEVED DOCUMENTS:\n")
	b.WriteString(separator + "\n")
	b.WriteString(block + "\n")
	b.WriteString(separator + "\n\n")
	b.WriteString("IMPORTANT INSTRUCTIONS:\n")
	b.WriteString("1. ONLY use information from the RETRIEVED DOCUMENTS above.\n")
	b.WriteString("2. For EVERY factual claim, include a citation: [Source: filename, Page X, Section Y]\n")
	b.WriteString("3. If the documents do not contain the answer, clearly state: " +
		"\"The provided documents do not contain information about this topic.\"\n")
	b.WriteString("4. NEVER make up information not present in the documents.\n")
	b.WriteString("5. Be precise and specific: cite exact page numbers and sections.\n\n")
	b.WriteString("USER QUESTION: " + query)
	return b.String()
}

// BuildVanillaPrompt wraps the raw query for comparison mode.
func BuildVanillaPrompt(query string) string {
	return "Answer the following question. Be helpful and informative.\n\nQuestion: " + query
}
