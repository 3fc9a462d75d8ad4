package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/upb/sme-plug/config"
	"github.com/upb/sme-plug/models"
)

const amlPolicy = "AML REPORTING POLICY\n" +
	"Cash transactions above the reporting threshold of $10,000 must be reported to the compliance team " +
	"within fifteen days. Suspicious activity must be escalated to the compliance officer.\n"

const llmAnswer = "Cash transactions above the reporting threshold of $10,000 must be reported within fifteen days " +
	"[Source: AML_Policy_v3.txt, Page 1, Section AML REPORTING POLICY]. " +
	"This is AI-assisted guidance; consult the compliance team."

// fakeLLM serves OpenAI-compatible chat completions with a fixed answer.
func fakeLLM(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "llama-3.3-70b-versatile",
			"choices": []map[string]interface{}{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, llmURL string) *config.Config {
	t.Helper()

	dir := t.TempDir()
	corpora := filepath.Join(dir, "corpora")
	require.NoError(t, os.MkdirAll(corpora, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(corpora, "AML_Policy_v3.txt"), []byte(amlPolicy), 0o644))

	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           8000,
			RequestTimeout: 10 * time.Second,
			CORSOrigins:    []string{"http://localhost:3000"},
		},
		LLM: config.LLMConfig{
			Provider: "groq",
			Groq: config.ProviderEndpoint{
				APIKey:  "test-key",
				BaseURL: llmURL,
				Model:   "llama-3.3-70b-versatile",
			},
			Temperature:        0.1,
			MaxTokens:          2048,
			VanillaTemperature: 0.7,
			VanillaMaxTokens:   1024,
			Timeout:            5 * time.Second,
			MaxRetries:         0,
			RetryDelay:         time.Millisecond,
		},
		Retrieval: config.RetrievalConfig{
			CorporaDir:    corpora,
			TopK:          5,
			ChunkSize:     512,
			ChunkOverlap:  64,
			MinChunkChars: 50,
			Embedder:      "hash",
			EmbeddingDims: 256,
			WatchCorpus:   true,
		},
		Personas: config.PersonaConfig{
			NamespacesFile: filepath.Join(dir, "namespaces.json"),
		},
		Audit: config.AuditConfig{
			BufferSize:  10,
			WorkerCount: 1,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "json",
			MetricsEnabled: true,
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("wires the pipeline end to end", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t, fakeLLM(t, llmAnswer).URL)

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Nil(t, deps.SQLDB())
		assert.Nil(t, deps.AuditEntries)
		assert.Equal(t, []string{"groq"}, deps.Providers.ListProviders())
		assert.FileExists(t, cfg.Personas.NamespacesFile)
		assert.Equal(t, "compliance", deps.Personas.ActiveID())

		result, err := deps.Pipeline.Process(ctx, models.QueryRequest{
			Text: "What is the AML reporting threshold for cash transactions?",
		})
		require.NoError(t, err)

		resp := result.Standard
		require.NotNil(t, resp)
		assert.Equal(t, "compliance", resp.PersonaID)
		assert.Equal(t, llmAnswer, resp.ResponseText)
		assert.Len(t, resp.PipelineSteps, 5)
		assert.Equal(t, 1, deps.AuditLog.Len())
		assert.True(t, deps.Retriever.Cached("compliance"))

		families, err := deps.MetricsRegistry.Gather()
		require.NoError(t, err)
		names := make(map[string]bool, len(families))
		for _, f := range families {
			names[f.GetName()] = true
		}
		assert.True(t, names["sme_plug_queries_total"])
		assert.True(t, names["go_goroutines"])
	})

	t.Run("corpus edits invalidate the cached index", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t, fakeLLM(t, llmAnswer).URL)

		deps, err := NewDependencies(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		defer deps.Close(ctx)

		_, err = deps.Retriever.Retrieve(ctx, "reporting threshold", "compliance", 3)
		require.NoError(t, err)
		require.True(t, deps.Retriever.Cached("compliance"))

		path := filepath.Join(cfg.Retrieval.CorporaDir, "AML_Policy_v3.txt")
		require.NoError(t, os.WriteFile(path, []byte(amlPolicy+"Wire transfers follow the same rule.\n"), 0o644))

		assert.Eventually(t, func() bool {
			return !deps.Retriever.Cached("compliance")
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("openai embedder and both providers", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t, fakeLLM(t, llmAnswer).URL)
		cfg.LLM.OpenAI = config.ProviderEndpoint{APIKey: "sk-test", BaseURL: "http://127.0.0.1:1/v1", Model: "gpt-4o-mini"}
		cfg.Retrieval.Embedder = "openai"
		cfg.Retrieval.WatchCorpus = false

		deps, err := NewDependencies(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Equal(t, []string{"groq", "openai"}, deps.Providers.ListProviders())
		assert.NotNil(t, deps.Embedder)
	})

	t.Run("gemini as the active provider", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t, "http://127.0.0.1:1/v1")
		cfg.LLM.Provider = "gemini"
		cfg.LLM.Groq.APIKey = ""
		cfg.LLM.Gemini = config.ProviderEndpoint{
			APIKey:  "g-test",
			BaseURL: fakeLLM(t, llmAnswer).URL,
			Model:   "gemini-2.0-flash",
		}
		cfg.Retrieval.WatchCorpus = false

		deps, err := NewDependencies(ctx, cfg, zap.NewNop())
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Equal(t, []string{"gemini"}, deps.Providers.ListProviders())

		result, err := deps.Pipeline.Process(ctx, models.QueryRequest{
			Text: "What is the AML reporting threshold for cash transactions?",
		})
		require.NoError(t, err)
		require.NotNil(t, result.Standard)
		assert.Equal(t, llmAnswer, result.Standard.ResponseText)
	})

	t.Run("database connection failure", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t, "http://127.0.0.1:1/v1")
		cfg.Database = config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "smeplug",
			Database: "smeplug_audit",
			SSLMode:  "disable",
		}

		deps, err := NewDependencies(ctx, cfg, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("corrupt namespaces file", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t, "http://127.0.0.1:1/v1")
		require.NoError(t, os.WriteFile(cfg.Personas.NamespacesFile, []byte("{not json"), 0o644))

		deps, err := NewDependencies(ctx, cfg, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize personas")
	})

	t.Run("unknown provider", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t, "http://127.0.0.1:1/v1")
		cfg.LLM.Provider = "anthropic"

		deps, err := NewDependencies(ctx, cfg, zap.NewNop())
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize generation")
	})
}

func TestDependenciesClose(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "http://127.0.0.1:1/v1")

	deps, err := NewDependencies(ctx, cfg, zap.NewNop())
	require.NoError(t, err)

	assert.NoError(t, deps.Close(ctx))
	assert.NoError(t, deps.Close(ctx))
}
