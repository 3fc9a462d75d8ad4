package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/repositories"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	tx     *txRunner
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		tx:     &txRunner{db: db, logger: logger},
		logger: logger,
	}
}

// Insert stores one audit entry. Re-inserting a query id is a no-op.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (
			query_id, timestamp, persona_id, persona_name, query_text,
			input_decision, output_decision, hallucination_score, citation_count, payload
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (query_id) DO NOTHING
	`

	payload, err := entry.Payload()
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}

	_, err = executorFor(ctx, r.db).ExecContext(ctx, query,
		entry.QueryID,
		entry.Timestamp,
		entry.PersonaID,
		entry.PersonaName,
		entry.QueryText,
		decision(entry.InputGuardrail),
		decision(entry.OutputGuardrail),
		entry.HallucinationScore,
		len(entry.Citations),
		[]byte(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}

	r.logger.Debug("audit entry inserted", zap.String("query_id", entry.QueryID))
	return nil
}

// InsertBatch stores entries in one transaction; any failure rolls back the batch
func (r *AuditRepository) InsertBatch(ctx context.Context, entries []*models.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.tx.InTransaction(ctx, func(txCtx context.Context) error {
		for _, e := range entries {
			if err := r.Insert(txCtx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByQueryID retrieves an audit entry by query id
func (r *AuditRepository) GetByQueryID(ctx context.Context, queryID string) (*models.AuditEntry, error) {
	query := `SELECT payload FROM audit_entries WHERE query_id = $1`

	var payload []byte
	err := executorFor(ctx, r.db).QueryRowContext(ctx, query, queryID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("audit entry %s: %w", queryID, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}

	return decodeEntry(payload)
}

func decodeEntry(payload []byte) (*models.AuditEntry, error) {
	var entry models.AuditEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode audit entry: %w", err)
	}
	return &entry, nil
}

func decision(v *models.GuardrailVerdict) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(v.Decision), Valid: true}
}
