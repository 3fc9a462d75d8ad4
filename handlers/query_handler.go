package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/middleware"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/utils"
)

// QueryService runs a query through the guarded pipeline
type QueryService interface {
	Process(ctx context.Context, req models.QueryRequest) (*models.QueryResult, error)
}

// QueryHandler handles query HTTP requests
type QueryHandler struct {
	service QueryService
	logger  *zap.Logger
}

// NewQueryHandler creates a new QueryHandler
func NewQueryHandler(service QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		service: service,
		logger:  logger,
	}
}

// HandleQuery handles POST /api/query.
// The body is a QueryResponse, or a ComparisonResponse when compare_mode is set.
func (h *QueryHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := middleware.LoggerFrom(ctx, h.logger)

	var req models.QueryRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		logger.Warn("failed to parse query body", zap.Error(err))
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		logger.Warn("query validation failed", zap.Error(err))
		HandleValidationError(w, err, logger)
		return
	}

	if req.PersonaID == "" {
		req.PersonaID = middleware.GetPersonaIDFromContext(ctx)
	}

	result, err := h.service.Process(ctx, req)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	var body interface{} = result.Standard
	if result.Kind == models.ResultComparison {
		body = result.Comparison
	}

	if err := utils.WriteJSON(w, http.StatusOK, body); err != nil {
		logger.Error("failed to write query response", zap.Error(err))
	}
}
