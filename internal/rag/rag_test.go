package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestChunkDocument(t *testing.T) {
	t.Run("heading becomes section title", func(t *testing.T) {
		text := "SANCTIONS SCREENING\nAll customers must be screened against the SDN list before onboarding."
		chunks := ChunkDocument("AML_Policy_v3.txt", text, DefaultChunkOptions())

		require.Len(t, chunks, 1)
		assert.Equal(t, "SANCTIONS SCREENING", chunks[0].Title)
		assert.Equal(t, 1, chunks[0].Page)
		assert.Equal(t, "AML_Policy_v3.txt", chunks[0].Filename)
		assert.True(t, strings.HasPrefix(chunks[0].Content, "All customers"))
	})

	t.Run("form feed starts a new page", func(t *testing.T) {
		body := "Transaction monitoring alerts are reviewed within five business days."
		text := "# Intro\n" + body + "\f# Reporting\n" + body
		chunks := ChunkDocument("policy.txt", text, DefaultChunkOptions())

		require.Len(t, chunks, 2)
		assert.Equal(t, 1, chunks[0].Page)
		assert.Equal(t, "Intro", chunks[0].Title)
		assert.Equal(t, 2, chunks[1].Page)
		assert.Equal(t, "Reporting", chunks[1].Title)
	})

	t.Run("short chunks are dropped", func(t *testing.T) {
		chunks := ChunkDocument("tiny.txt", "too short to index", DefaultChunkOptions())
		assert.Empty(t, chunks)
	})

	t.Run("overlapping windows", func(t *testing.T) {
		chunks := ChunkDocument("long.txt", words("w", 600), DefaultChunkOptions())

		require.Len(t, chunks, 2)
		assert.Len(t, strings.Fields(chunks[0].Content), 512)
		assert.True(t, strings.HasPrefix(chunks[1].Content, "w448 "))
		assert.Len(t, strings.Fields(chunks[1].Content), 152)
	})

	t.Run("node ids are deterministic and unique", func(t *testing.T) {
		text := words("a", 1200)
		first := ChunkDocument("f.txt", text, DefaultChunkOptions())
		second := ChunkDocument("f.txt", text, DefaultChunkOptions())
		require.Equal(t, len(first), len(second))

		seen := map[string]bool{}
		for i := range first {
			assert.Equal(t, first[i].NodeID, second[i].NodeID)
			assert.False(t, seen[first[i].NodeID])
			seen[first[i].NodeID] = true
		}
	})
}

func TestHeadingTitle(t *testing.T) {
	tests := []struct {
		line  string
		title string
		ok    bool
	}{
		{"# Overview", "Overview", true},
		{"### Risk Factors ", "Risk Factors", true},
		{"AML POLICY V3", "AML POLICY V3", true},
		{"  PENALTIES:  ", "PENALTIES:", true},
		{"Section 1", "", false},
		{"ID 12", "", false},
		{"#", "", false},
		{"", "", false},
		{strings.Repeat("A", 81), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			title, ok := headingTitle(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.title, title)
			}
		})
	}
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()

	vecs, err := e.Embed(ctx, []string{
		"OFAC sanctions screening of customers",
		"OFAC sanctions screening of customers",
		"equity mutual fund expense ratio",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)
	assert.Len(t, vecs[0], 256)
	assert.Equal(t, vecs[0], vecs[1])

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	query, err := e.Embed(ctx, []string{"sanctions screening"})
	require.NoError(t, err)
	assert.Greater(t, CosineSimilarity(query[0], vecs[0]), CosineSimilarity(query[0], vecs[2]))
	assert.Equal(t, 0.0, CosineSimilarity(query[0], vecs[3]))
}

func TestHashEmbedder_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHashEmbedder(8).Embed(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryIndex(t *testing.T) {
	chunks := []Chunk{
		{NodeID: "a", Content: "a"},
		{NodeID: "b", Content: "b"},
		{NodeID: "c", Content: "c"},
	}
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}

	idx, err := NewMemoryIndex(chunks, vectors)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	hits, err := idx.Search(context.Background(), []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].Chunk.NodeID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "c", hits[1].Chunk.NodeID)

	hits, err = idx.Search(context.Background(), []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = NewMemoryIndex(chunks, vectors[:1])
	assert.Error(t, err)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("model offline")
}

type shortEmbedder struct{}

func (shortEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)-1), nil
}

func TestBuildIndex(t *testing.T) {
	ctx := context.Background()
	chunks := ChunkDocument("f.txt", words("term", 5000), ChunkOptions{Size: 40, Overlap: 0, MinChars: 10})
	require.Greater(t, len(chunks), embedBatchSize)

	idx, err := BuildIndex(ctx, NewHashEmbedder(64), chunks)
	require.NoError(t, err)
	assert.Equal(t, len(chunks), idx.Len())

	empty, err := BuildIndex(ctx, NewHashEmbedder(64), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())

	_, err = BuildIndex(ctx, failingEmbedder{}, chunks)
	assert.ErrorContains(t, err, "model offline")

	_, err = BuildIndex(ctx, shortEmbedder{}, chunks)
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}
