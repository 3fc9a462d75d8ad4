package handlers

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/middleware"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/services"
	"github.com/upb/sme-plug/utils"
)

// PersonaService defines the registry operations the handler needs
type PersonaService interface {
	List() []models.Persona
	Get(id string) (models.Persona, bool)
	ActiveID() string
	Switch(id string) (models.Persona, error)
	Create(p models.Persona) (models.Persona, error)
}

// CacheInvalidator drops a persona's cached retrieval index
type CacheInvalidator interface {
	Invalidate(personaID string)
}

// CreatePersonaRequest is the body of POST /api/personas
type CreatePersonaRequest struct {
	ID                   string   `json:"id" validate:"required,max=64,slug"`
	Name                 string   `json:"name" validate:"required,max=255"`
	Description          string   `json:"description" validate:"max=2000"`
	CorpusFiles          []string `json:"corpus_files" validate:"dive,required,slug"`
	AllowedTopics        []string `json:"allowed_topics"`
	BlockedTerms         []string `json:"blocked_terms" validate:"dive,required"`
	GuardrailLevel       string   `json:"guardrail_level" validate:"omitempty,oneof=strict moderate lenient"`
	RequireDisclaimer    bool     `json:"require_disclaimer"`
	SystemPromptOverride string   `json:"system_prompt_override,omitempty"`
}

func (c CreatePersonaRequest) persona() models.Persona {
	return models.Persona{
		ID:                   c.ID,
		Name:                 c.Name,
		Description:          c.Description,
		CorpusFiles:          c.CorpusFiles,
		AllowedTopics:        c.AllowedTopics,
		BlockedTerms:         c.BlockedTerms,
		GuardrailLevel:       models.GuardrailLevel(c.GuardrailLevel),
		RequireDisclaimer:    c.RequireDisclaimer,
		SystemPromptOverride: c.SystemPromptOverride,
	}
}

// SwitchPersonaRequest is the body of PUT /api/personas/switch
type SwitchPersonaRequest struct {
	PersonaID string `json:"persona_id" validate:"required,max=64"`
}

// PersonaListResponse lists personas with the active one marked
type PersonaListResponse struct {
	Personas        []models.Persona `json:"personas"`
	ActivePersonaID *string          `json:"active_persona_id"`
}

// PersonaDetailResponse is one persona and whether it is active
type PersonaDetailResponse struct {
	Persona  models.Persona `json:"persona"`
	IsActive bool           `json:"is_active"`
}

// PersonaSwitchResponse reports a completed hot swap
type PersonaSwitchResponse struct {
	Status       string         `json:"status"`
	Persona      models.Persona `json:"persona"`
	SwitchTimeMs float64        `json:"switch_time_ms"`
	Message      string         `json:"message"`
}

// PersonaCreatedResponse wraps a newly created persona
type PersonaCreatedResponse struct {
	Status  string         `json:"status"`
	Persona models.Persona `json:"persona"`
}

// PersonaHandler handles persona HTTP requests
type PersonaHandler struct {
	personas PersonaService
	cache    CacheInvalidator
	logger   *zap.Logger
}

// NewPersonaHandler creates a new PersonaHandler. cache may be nil.
func NewPersonaHandler(personas PersonaService, cache CacheInvalidator, logger *zap.Logger) *PersonaHandler {
	return &PersonaHandler{
		personas: personas,
		cache:    cache,
		logger:   logger,
	}
}

// HandleList handles GET /api/personas
func (h *PersonaHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	resp := PersonaListResponse{Personas: h.personas.List()}
	if resp.Personas == nil {
		resp.Personas = []models.Persona{}
	}
	if active := h.personas.ActiveID(); active != "" {
		resp.ActivePersonaID = &active
	}
	_ = utils.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /api/personas/{id}
func (h *PersonaHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.personas.Get(id)
	if !ok {
		err := services.Derive(services.ErrPersonaNotFound, nil).WithDetail("persona_id", id)
		HandleServiceError(w, err, middleware.LoggerFrom(r.Context(), h.logger))
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, PersonaDetailResponse{
		Persona:  p,
		IsActive: h.personas.ActiveID() == id,
	})
}

// HandleSwitch handles PUT /api/personas/switch
func (h *PersonaHandler) HandleSwitch(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFrom(r.Context(), h.logger)

	var req SwitchPersonaRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	start := time.Now()
	p, err := h.personas.Switch(req.PersonaID)
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	_ = utils.WriteJSON(w, http.StatusOK, PersonaSwitchResponse{
		Status:       "switched",
		Persona:      p,
		SwitchTimeMs: math.Round(elapsed*100) / 100,
		Message:      fmt.Sprintf("Switched to '%s' in %.1fms", p.Name, elapsed),
	})
}

// HandleCreate handles POST /api/personas
func (h *PersonaHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	logger := middleware.LoggerFrom(r.Context(), h.logger)

	var req CreatePersonaRequest
	if err := utils.DecodeJSON(w, r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, logger)
		return
	}

	p, err := h.personas.Create(req.persona())
	if err != nil {
		HandleServiceError(w, err, logger)
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(p.ID)
	}

	logger.Info("persona created via api", zap.String("persona_id", p.ID))
	_ = utils.WriteJSON(w, http.StatusCreated, PersonaCreatedResponse{
		Status:  "created",
		Persona: p,
	})
}
