package repositories

import (
	"context"
	"errors"

	"github.com/upb/sme-plug/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// AuditRepository mirrors audit entries to durable storage
type AuditRepository interface {
	// Insert stores one audit entry; an existing query id is left untouched
	Insert(ctx context.Context, entry *models.AuditEntry) error

	// InsertBatch stores several entries in a single transaction
	InsertBatch(ctx context.Context, entries []*models.AuditEntry) error

	// GetByQueryID retrieves an entry by query id; ErrNotFound when absent
	GetByQueryID(ctx context.Context, queryID string) (*models.AuditEntry, error)
}

// Repositories aggregates all repository interfaces
type Repositories struct {
	AuditEntries AuditRepository
}
