package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/middleware"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/services"
	"github.com/upb/sme-plug/utils"
)

// MockQueryService is a mock implementation of QueryService
type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Process(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.QueryResult), args.Error(1)
}

func postQuery(h *QueryHandler, body string, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req = req.WithContext(middleware.WithPersonaID(req.Context(), header))
	}
	w := httptest.NewRecorder()
	h.HandleQuery(w, req)
	return w
}

func TestHandleQuery(t *testing.T) {
	logger := zap.NewNop()

	standard := &models.QueryResponse{
		QueryID:      "q-1",
		ResponseText: "Transactions above $10,000 require a CTR [Source: AML_Policy_v3.txt, Page 1, Section Thresholds].",
		Citations:    []models.Citation{},
		PersonaID:    "compliance",
		PersonaName:  "Compliance Officer",
	}

	t.Run("standard query returns the guarded response", func(t *testing.T) {
		svc := new(MockQueryService)
		svc.On("Process", mock.Anything, models.QueryRequest{Text: "What is the CTR threshold?", TopK: 3}).
			Return(&models.QueryResult{Kind: models.ResultStandard, Standard: standard}, nil)

		w := postQuery(NewQueryHandler(svc, logger), `{"text":"What is the CTR threshold?","top_k":3}`, "")

		assert.Equal(t, http.StatusOK, w.Code)
		var got models.QueryResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, "q-1", got.QueryID)
		assert.Equal(t, "Compliance Officer", got.PersonaName)
		svc.AssertExpectations(t)
	})

	t.Run("compare mode returns the comparison shape", func(t *testing.T) {
		svc := new(MockQueryService)
		svc.On("Process", mock.Anything, mock.MatchedBy(func(r models.QueryRequest) bool { return r.CompareMode })).
			Return(&models.QueryResult{
				Kind: models.ResultComparison,
				Comparison: &models.ComparisonResponse{
					QueryID:         "q-1",
					VanillaResponse: "Probably $10,000.",
					SMEPlugResponse: standard,
					PersonaName:     "Compliance Officer",
				},
			}, nil)

		w := postQuery(NewQueryHandler(svc, logger), `{"text":"threshold?","compare_mode":true}`, "")

		assert.Equal(t, http.StatusOK, w.Code)
		var got map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		assert.Equal(t, "Probably $10,000.", got["vanilla_response"])
		require.Contains(t, got, "smeplug_response")
	})

	t.Run("header persona fills an empty body persona", func(t *testing.T) {
		svc := new(MockQueryService)
		svc.On("Process", mock.Anything, models.QueryRequest{Text: "hello there", PersonaID: "advisor"}).
			Return(&models.QueryResult{Kind: models.ResultStandard, Standard: standard}, nil)

		w := postQuery(NewQueryHandler(svc, logger), `{"text":"hello there"}`, "advisor")

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	t.Run("body persona wins over header", func(t *testing.T) {
		svc := new(MockQueryService)
		svc.On("Process", mock.Anything, models.QueryRequest{Text: "hello there", PersonaID: "compliance"}).
			Return(&models.QueryResult{Kind: models.ResultStandard, Standard: standard}, nil)

		w := postQuery(NewQueryHandler(svc, logger), `{"text":"hello there","persona_id":"compliance"}`, "advisor")

		assert.Equal(t, http.StatusOK, w.Code)
		svc.AssertExpectations(t)
	})

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"text":`},
		{name: "empty body", body: ``},
		{name: "unknown field", body: `{"text":"hi","model":"gpt"}`},
		{name: "missing text", body: `{"compare_mode":true}`},
		{name: "top_k out of range", body: `{"text":"hi","top_k":500}`},
		{name: "text too long", body: `{"text":"` + strings.Repeat("a", 4001) + `"}`},
	}
	for _, tt := range tests {
		t.Run("bad request: "+tt.name, func(t *testing.T) {
			svc := new(MockQueryService)

			w := postQuery(NewQueryHandler(svc, logger), tt.body, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			svc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
		})
	}

	t.Run("unknown persona is 404", func(t *testing.T) {
		svc := new(MockQueryService)
		svc.On("Process", mock.Anything, mock.Anything).
			Return(nil, services.Derive(services.ErrPersonaNotFound, nil).WithDetail("persona_id", "ghost"))

		w := postQuery(NewQueryHandler(svc, logger), `{"text":"hi","persona_id":"ghost"}`, "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("generation failure is a generic 502", func(t *testing.T) {
		svc := new(MockQueryService)
		svc.On("Process", mock.Anything, mock.Anything).
			Return(nil, services.Derive(services.ErrGenerationFailed, errors.New("dial tcp: connection refused")))

		w := postQuery(NewQueryHandler(svc, logger), `{"text":"hi"}`, "")

		assert.Equal(t, http.StatusBadGateway, w.Code)
		var response utils.ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "Pipeline error: generation failed", response.Message)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}
