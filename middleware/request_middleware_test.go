package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	t.Run("logs status and attaches request logger", func(t *testing.T) {
		core, logs := observer.New(zap.InfoLevel)
		m := NewRequestMiddleware(zap.New(core))

		var sawLogger bool
		handler := chimw.RequestID(m.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawLogger = r.Context().Value(LoggerKey) != nil
			w.WriteHeader(http.StatusTeapot)
		})))

		req := httptest.NewRequest(http.MethodGet, "/api/personas", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.True(t, sawLogger)
		assert.Equal(t, http.StatusTeapot, w.Code)

		entries := logs.FilterMessage("request completed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.WarnLevel, entries[0].Level)

		fields := entries[0].ContextMap()
		assert.Equal(t, int64(http.StatusTeapot), fields["status"])
		assert.Equal(t, "/api/personas", fields["path"])
		assert.NotEmpty(t, fields["request_id"])
	})

	t.Run("implicit 200 is logged at info", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		m := NewRequestMiddleware(zap.New(core))

		handler := m.Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

		entries := logs.FilterMessage("request completed").All()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	})
}

func TestExtractPersona(t *testing.T) {
	m := NewRequestMiddleware(zap.NewNop())

	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedID     string
	}{
		{name: "no header", header: "", expectedStatus: http.StatusOK, expectedID: ""},
		{name: "header is trimmed", header: "  advisor ", expectedStatus: http.StatusOK, expectedID: "advisor"},
		{name: "header too long", header: strings.Repeat("x", 65), expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := m.ExtractPersona(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetPersonaIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
			if tt.header != "" {
				req.Header.Set(PersonaHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedID, got)
		})
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestIDFromContext(ctx))
	assert.Equal(t, "req-1", GetRequestIDFromContext(WithRequestID(ctx, "req-1")))

	fallback := zap.NewNop()
	assert.Same(t, fallback, LoggerFrom(ctx, fallback))
	assert.NotNil(t, LoggerFrom(ctx, nil))

	scoped := zap.NewNop().With(zap.String("k", "v"))
	assert.Same(t, scoped, LoggerFrom(WithLogger(ctx, scoped), fallback))

	assert.Empty(t, GetPersonaIDFromContext(ctx))
	assert.Equal(t, "compliance", GetPersonaIDFromContext(WithPersonaID(ctx, "compliance")))
}
