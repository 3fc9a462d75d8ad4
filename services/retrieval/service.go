// Package retrieval serves the most relevant corpus passages for a persona.
//
// Each persona's corpus is chunked and embedded once into an in-memory index.
// Warm lookups go through a sync.Map. Cold loads for the same persona are
// collapsed with singleflight, and every persona carries a generation counter:
// a load that started before an Invalidate is returned to its callers but
// never published to the cache.
package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/internal/rag"
	"github.com/upb/sme-plug/models"
)

// Cache events reported to metrics.
const (
	CacheHit        = "hit"
	CacheLoad       = "load"
	CacheInvalidate = "invalidate"
)

// CorpusSource provides the raw corpus of a persona, keyed by file name.
type CorpusSource interface {
	CorpusTexts(personaID string) (map[string]string, error)
}

// Options tunes chunking and result filtering.
type Options struct {
	Chunk    rag.ChunkOptions
	MinScore float64
}

// DefaultOptions returns 512-word chunks with 64 words of overlap and no score floor.
func DefaultOptions() Options {
	return Options{Chunk: rag.DefaultChunkOptions()}
}

// Service implements rag.Retriever over per-persona memory indices.
type Service struct {
	source   CorpusSource
	embedder rag.Embedder
	opts     Options
	logger   *zap.Logger
	metrics  *observability.Metrics

	indices sync.Map // persona id -> rag.Index
	flight  singleflight.Group

	mu    sync.Mutex
	epoch uint64            // bumped by Invalidate("")
	gens  map[string]uint64 // bumped by Invalidate(id)
}

var _ rag.Retriever = (*Service)(nil)

// NewService creates a retriever reading corpora from source.
func NewService(source CorpusSource, embedder rag.Embedder, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		source:   source,
		embedder: embedder,
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		gens:     make(map[string]uint64),
	}
}

// Retrieve returns up to topK passages ordered by descending score. Results
// scoring below the configured minimum are dropped. A persona without corpus
// files yields an empty slice.
func (s *Service) Retrieve(ctx context.Context, query, personaID string, topK int) ([]models.RetrievalResult, error) {
	idx, err := s.index(ctx, personaID)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 || topK <= 0 {
		return []models.RetrievalResult{}, nil
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vectors))
	}

	hits, err := idx.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]models.RetrievalResult, 0, len(hits))
	for _, h := range hits {
		if h.Score < s.opts.MinScore {
			continue
		}
		results = append(results, models.RetrievalResult{Passage: h.Chunk.Passage(), Score: h.Score})
	}
	return results, nil
}

// Invalidate drops the cached index for personaID, or every index when
// personaID is empty. Loads already in flight are not published.
func (s *Service) Invalidate(personaID string) {
	s.mu.Lock()
	if personaID == "" {
		s.epoch++
		s.indices.Range(func(key, _ any) bool {
			s.indices.Delete(key)
			return true
		})
	} else {
		s.gens[personaID]++
		s.indices.Delete(personaID)
	}
	s.mu.Unlock()

	s.metrics.RecordCacheEvent(CacheInvalidate)
	s.logger.Debug("retrieval cache invalidated", zap.String("persona_id", personaID))
}

// Cached reports whether an index for personaID is currently published.
func (s *Service) Cached(personaID string) bool {
	_, ok := s.indices.Load(personaID)
	return ok
}

type generation struct {
	epoch uint64
	gen   uint64
}

func (s *Service) current(personaID string) generation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return generation{epoch: s.epoch, gen: s.gens[personaID]}
}

func (s *Service) index(ctx context.Context, personaID string) (rag.Index, error) {
	if v, ok := s.indices.Load(personaID); ok {
		s.metrics.RecordCacheEvent(CacheHit)
		return v.(rag.Index), nil
	}

	g := s.current(personaID)
	key := fmt.Sprintf("%s@%d.%d", personaID, g.epoch, g.gen)

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		// Shared by every waiter on this key, so one caller's cancellation
		// must not fail the others.
		idx, err := s.build(context.WithoutCancel(ctx), personaID)
		if err != nil {
			return nil, err
		}
		s.publish(personaID, g, idx)
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(rag.Index), nil
}

func (s *Service) publish(personaID string, g generation, idx rag.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != g.epoch || s.gens[personaID] != g.gen {
		s.logger.Debug("discarding stale index", zap.String("persona_id", personaID))
		return
	}
	s.indices.Store(personaID, idx)
}

func (s *Service) build(ctx context.Context, personaID string) (rag.Index, error) {
	start := time.Now()

	texts, err := s.source.CorpusTexts(personaID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(texts))
	for name := range texts {
		names = append(names, name)
	}
	sort.Strings(names)

	var chunks []rag.Chunk
	for _, name := range names {
		chunks = append(chunks, rag.ChunkDocument(name, texts[name], s.opts.Chunk)...)
	}

	idx, err := rag.BuildIndex(ctx, s.embedder, chunks)
	if err != nil {
		return nil, fmt.Errorf("build index for %s: %w", personaID, err)
	}

	s.metrics.RecordCacheEvent(CacheLoad)
	s.logger.Info("retrieval index built",
		zap.String("persona_id", personaID),
		zap.Int("files", len(names)),
		zap.Int("chunks", idx.Len()),
		zap.Duration("duration", time.Since(start)),
	)
	return idx, nil
}
