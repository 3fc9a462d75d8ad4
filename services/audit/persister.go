package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/repositories"
)

// Persist outcomes reported to metrics.
const (
	PersistOK      = "ok"
	PersistError   = "error"
	PersistDropped = "dropped"
)

var (
	// ErrNotStarted is returned when entries are enqueued before Start or after Stop
	ErrNotStarted = errors.New("audit persister not started")
	// ErrBufferFull is returned when the queue cannot take another entry
	ErrBufferFull = errors.New("audit persister buffer full")
)

// Config holds configuration for the Persister
type Config struct {
	BufferSize   int           // Size of the entry queue
	WorkerCount  int           // Number of concurrent workers
	BatchSize    int           // Entries written per transaction
	WriteTimeout time.Duration // Deadline for one batch
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:   1000,
		WorkerCount:  2,
		BatchSize:    20,
		WriteTimeout: 5 * time.Second,
	}
}

// Persister writes audit entries to a repository on background workers.
// Enqueue never blocks the request path; a full queue drops the entry.
type Persister struct {
	repo    repositories.AuditRepository
	logger  *zap.Logger
	metrics *observability.Metrics
	cfg     Config

	queue   chan *models.AuditEntry
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewPersister creates a persister; call Start before enqueuing.
func NewPersister(repo repositories.AuditRepository, cfg Config, logger *zap.Logger, metrics *observability.Metrics) *Persister {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Persister{
		repo:    repo,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		queue:   make(chan *models.AuditEntry, cfg.BufferSize),
	}
}

// Start starts the background workers
func (p *Persister) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return fmt.Errorf("audit persister already started")
	}

	for i := 0; i < p.cfg.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.started = true
	p.logger.Info("started audit persister",
		zap.Int("worker_count", p.cfg.WorkerCount),
		zap.Int("buffer_size", p.cfg.BufferSize))
	return nil
}

// Stop closes the queue and waits for pending entries to be written
func (p *Persister) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrNotStarted
	}
	p.started = false
	close(p.queue)
	p.mu.Unlock()

	p.logger.Info("stopping audit persister", zap.Int("pending_entries", len(p.queue)))

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("audit persister stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("audit persister stop timeout after %v", timeout)
	}
}

// Enqueue implements Sink
func (p *Persister) Enqueue(entry *models.AuditEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrNotStarted
	}

	select {
	case p.queue <- entry:
		return nil
	default:
		p.metrics.RecordAuditPersist(PersistDropped)
		return ErrBufferFull
	}
}

// Pending returns the number of queued entries
func (p *Persister) Pending() int {
	return len(p.queue)
}

func (p *Persister) worker(id int) {
	defer p.wg.Done()

	for first := range p.queue {
		batch := p.collect(first)
		if err := p.write(batch); err != nil {
			p.metrics.RecordAuditPersist(PersistError)
			p.logger.Error("failed to persist audit entries",
				zap.Int("worker_id", id),
				zap.Int("batch_size", len(batch)),
				zap.String("first_query_id", batch[0].QueryID),
				zap.Error(err))
			continue
		}
		p.metrics.RecordAuditPersist(PersistOK)
	}
}

// collect drains whatever is already queued, up to the batch size
func (p *Persister) collect(first *models.AuditEntry) []*models.AuditEntry {
	batch := []*models.AuditEntry{first}
	for len(batch) < p.cfg.BatchSize {
		select {
		case e, ok := <-p.queue:
			if !ok {
				return batch
			}
			batch = append(batch, e)
		default:
			return batch
		}
	}
	return batch
}

func (p *Persister) write(batch []*models.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
	defer cancel()

	if len(batch) == 1 {
		return p.repo.Insert(ctx, batch[0])
	}
	return p.repo.InsertBatch(ctx, batch)
}
