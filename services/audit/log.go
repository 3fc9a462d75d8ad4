// Package audit keeps the append-only record of processed queries.
//
// Log is the authoritative in-process store. When a database is configured,
// a Persister mirrors every appended entry to it in the background.
package audit

import (
	"sync"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/services"
)

// Sink receives every entry after it has been appended.
type Sink interface {
	Enqueue(entry *models.AuditEntry) error
}

// Log is an append-only audit store. With a positive capacity it keeps only
// the most recent entries in a ring; zero keeps everything.
type Log struct {
	mu       sync.RWMutex
	entries  []*models.AuditEntry
	head     int // oldest entry once the ring is full
	byID     map[string]*models.AuditEntry
	capacity int

	sink    Sink
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewLog creates an empty audit log.
func NewLog(capacity int, logger *zap.Logger, metrics *observability.Metrics) *Log {
	if capacity < 0 {
		capacity = 0
	}
	return &Log{
		byID:     make(map[string]*models.AuditEntry),
		capacity: capacity,
		logger:   logger,
		metrics:  metrics,
	}
}

// SetSink attaches a background mirror. Call before the log is shared.
func (l *Log) SetSink(sink Sink) {
	l.sink = sink
}

// Append stores a copy of the entry. Entries need a unique, non-empty query
// id; later changes to the caller's value do not reach the log.
func (l *Log) Append(entry *models.AuditEntry) error {
	if entry == nil || entry.QueryID == "" {
		return services.Derive(services.ErrInvalidInput, nil).WithDetail("field", "query_id")
	}
	entry = entry.Clone()

	l.mu.Lock()
	if _, exists := l.byID[entry.QueryID]; exists {
		l.mu.Unlock()
		return services.NewDomainError(services.ErrorTypeConflict, "audit entry already exists", nil).
			WithDetail("query_id", entry.QueryID)
	}

	if l.capacity > 0 && len(l.entries) == l.capacity {
		evicted := l.entries[l.head]
		delete(l.byID, evicted.QueryID)
		l.entries[l.head] = entry
		l.head = (l.head + 1) % l.capacity
	} else {
		l.entries = append(l.entries, entry)
	}
	l.byID[entry.QueryID] = entry
	l.mu.Unlock()

	l.metrics.RecordAuditEntry()

	if l.sink != nil {
		if err := l.sink.Enqueue(entry.Clone()); err != nil {
			l.logger.Warn("audit entry not mirrored",
				zap.String("query_id", entry.QueryID),
				zap.Error(err))
		}
	}
	return nil
}

// List returns summaries of all retained entries, most recent first.
func (l *Log) List() []models.AuditSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	out := make([]models.AuditSummary, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, l.entries[(l.head+i)%n].Summary())
	}
	return out
}

// Get returns a copy of the full entry for queryID.
func (l *Log) Get(queryID string) (models.AuditEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.byID[queryID]
	if !ok {
		return models.AuditEntry{}, services.Derive(services.ErrAuditEntryNotFound, nil).WithDetail("query_id", queryID)
	}
	return *entry.Clone(), nil
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
