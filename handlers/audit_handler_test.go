package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/repositories/postgres"
	"github.com/upb/sme-plug/services/audit"
)

func newAuditRouter(t *testing.T, texts ...string) http.Handler {
	t.Helper()

	log := audit.NewLog(0, zap.NewNop(), nil)
	p := models.Persona{ID: "compliance", Name: "Compliance Officer"}
	for i, text := range texts {
		entry := models.NewAuditEntry(fmt.Sprintf("q-%d", i+1), p, text)
		entry.Citations = []models.Citation{{Marker: "[Source: AML_Policy_v3.txt]", Source: "AML_Policy_v3.txt"}}
		require.NoError(t, log.Append(entry))
	}

	h := NewAuditHandler(log, nil, zap.NewNop())
	r := chi.NewRouter()
	r.Get("/api/audit", h.HandleList)
	r.Get("/api/audit/{id}", h.HandleGet)
	return r
}

func TestAuditHandler_List(t *testing.T) {
	t.Run("most recent first with truncated text", func(t *testing.T) {
		long := strings.Repeat("sanctions ", 20)
		router := newAuditRouter(t, "first query", long)

		w := serve(router, http.MethodGet, "/api/audit", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var resp AuditListResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, 2, resp.Total)
		require.Len(t, resp.Entries, 2)
		assert.Equal(t, "q-2", resp.Entries[0].QueryID)
		assert.Equal(t, long[:100]+"...", resp.Entries[0].QueryText)
		assert.Equal(t, "first query", resp.Entries[1].QueryText)
		assert.Equal(t, 1, resp.Entries[1].CitationCount)
	})

	t.Run("empty log is an empty list", func(t *testing.T) {
		router := newAuditRouter(t)

		w := serve(router, http.MethodGet, "/api/audit", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"total":0,"entries":[]}`, w.Body.String())
	})
}

func TestAuditHandler_Get(t *testing.T) {
	router := newAuditRouter(t, "What is the CTR threshold?")

	t.Run("full entry", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/api/audit/q-1", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var entry models.AuditEntry
		require.NoError(t, json.NewDecoder(w.Body).Decode(&entry))
		assert.Equal(t, "What is the CTR threshold?", entry.QueryText)
		assert.Equal(t, "Compliance Officer", entry.PersonaName)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/api/audit/nope", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestAuditHandler_GetFallsBackToArchive(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	archive := postgres.NewAuditRepository(postgres.Wrap(sqlDB, zap.NewNop()), zap.NewNop())

	// a ring of one evicts q-1 when q-2 arrives
	log := audit.NewLog(1, zap.NewNop(), nil)
	p := models.Persona{ID: "compliance", Name: "Compliance Officer"}
	evicted := models.NewAuditEntry("q-1", p, "What is the CTR threshold?")
	require.NoError(t, log.Append(evicted))
	require.NoError(t, log.Append(models.NewAuditEntry("q-2", p, "Who reviews SAR filings?")))

	h := NewAuditHandler(log, archive, zap.NewNop())
	router := chi.NewRouter()
	router.Get("/api/audit/{id}", h.HandleGet)

	t.Run("evicted entry is read from the archive", func(t *testing.T) {
		payload, err := json.Marshal(evicted)
		require.NoError(t, err)
		mock.ExpectQuery("SELECT payload FROM audit_entries WHERE query_id").
			WithArgs("q-1").
			WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

		w := serve(router, http.MethodGet, "/api/audit/q-1", "")

		assert.Equal(t, http.StatusOK, w.Code)
		var entry models.AuditEntry
		require.NoError(t, json.NewDecoder(w.Body).Decode(&entry))
		assert.Equal(t, "q-1", entry.QueryID)
		assert.Equal(t, "What is the CTR threshold?", entry.QueryText)
	})

	t.Run("entry in memory skips the archive", func(t *testing.T) {
		w := serve(router, http.MethodGet, "/api/audit/q-2", "")

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing everywhere", func(t *testing.T) {
		mock.ExpectQuery("SELECT payload FROM audit_entries WHERE query_id").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"payload"}))

		w := serve(router, http.MethodGet, "/api/audit/nope", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("archive failure hides the cause", func(t *testing.T) {
		mock.ExpectQuery("SELECT payload FROM audit_entries WHERE query_id").
			WithArgs("q-9").
			WillReturnError(errors.New("connection reset"))

		w := serve(router, http.MethodGet, "/api/audit/q-9", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection reset")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
