package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/middleware"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/repositories"
	"github.com/upb/sme-plug/services"
	"github.com/upb/sme-plug/utils"
)

// AuditReader is the read surface of the audit log
type AuditReader interface {
	List() []models.AuditSummary
	Get(queryID string) (models.AuditEntry, error)
}

// AuditArchive is the durable copy of the audit log. It serves entries the
// in-memory ring has already evicted.
type AuditArchive interface {
	GetByQueryID(ctx context.Context, queryID string) (*models.AuditEntry, error)
}

// AuditListResponse is the body of GET /api/audit
type AuditListResponse struct {
	Total   int                   `json:"total"`
	Entries []models.AuditSummary `json:"entries"`
}

// AuditHandler handles audit trail HTTP requests
type AuditHandler struct {
	audit   AuditReader
	archive AuditArchive
	logger  *zap.Logger
}

// NewAuditHandler creates a new AuditHandler. archive may be nil when
// persistence is disabled.
func NewAuditHandler(audit AuditReader, archive AuditArchive, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{
		audit:   audit,
		archive: archive,
		logger:  logger,
	}
}

// HandleList handles GET /api/audit, most recent first
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	entries := h.audit.List()
	if entries == nil {
		entries = []models.AuditSummary{}
	}
	_ = utils.WriteJSON(w, http.StatusOK, AuditListResponse{
		Total:   len(entries),
		Entries: entries,
	})
}

// HandleGet handles GET /api/audit/{id}, falling back to the archive for
// entries no longer held in memory
func (h *AuditHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "id")
	logger := middleware.LoggerFrom(r.Context(), h.logger)

	entry, err := h.audit.Get(queryID)
	if err == nil {
		_ = utils.WriteJSON(w, http.StatusOK, entry)
		return
	}

	if services.IsNotFoundError(err) && h.archive != nil {
		archived, archiveErr := h.archive.GetByQueryID(r.Context(), queryID)
		switch {
		case archiveErr == nil:
			_ = utils.WriteJSON(w, http.StatusOK, archived)
			return
		case !errors.Is(archiveErr, repositories.ErrNotFound):
			HandleServiceError(w, services.WrapInternal("failed to read audit archive", archiveErr), logger)
			return
		}
	}

	HandleServiceError(w, err, logger)
}
