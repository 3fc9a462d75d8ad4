// Package persona manages the persona registry: the set of configured
// personas, the shared active slot and access to each persona's corpus.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/upb/sme-plug/internal/observability"
	"github.com/upb/sme-plug/models"
	"github.com/upb/sme-plug/services"
)

// Registry holds personas in insertion order and tracks the active persona.
// Reads take the read lock; Switch and Create take the write lock.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]models.Persona
	order    []string
	activeID string

	store      Store
	corporaDir string
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewRegistry creates an empty registry. Call Load to populate it.
func NewRegistry(store Store, corporaDir string, logger *zap.Logger, metrics *observability.Metrics) *Registry {
	return &Registry{
		personas:   make(map[string]models.Persona),
		store:      store,
		corporaDir: corporaDir,
		logger:     logger,
		metrics:    metrics,
	}
}

// Load reads personas from the store, seeding and persisting the defaults when
// the store is empty. The first persona becomes active when none is.
func (r *Registry) Load() error {
	return r.load(true)
}

// LoadReadOnly is Load without the write: an empty store yields the defaults
// in memory and the store is left untouched.
func (r *Registry) LoadReadOnly() error {
	return r.load(false)
}

func (r *Registry) load(persist bool) error {
	personas, err := r.store.Load()
	seeded := false
	if errors.Is(err, ErrStoreEmpty) {
		personas = DefaultPersonas()
		seeded = true
	} else if err != nil {
		return services.Derive(services.ErrPersistenceFailed, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.personas = make(map[string]models.Persona, len(personas))
	r.order = r.order[:0]
	for _, p := range personas {
		if err := p.Validate(); err != nil {
			return services.Derive(services.ErrInvalidPersona, err).WithDetail("persona_id", p.ID)
		}
		if _, dup := r.personas[p.ID]; dup {
			return services.Derive(services.ErrDuplicatePersona, nil).WithDetail("persona_id", p.ID)
		}
		r.personas[p.ID] = p.Clone()
		r.order = append(r.order, p.ID)
	}

	if seeded && persist {
		if err := r.store.Save(r.listLocked()); err != nil {
			return services.Derive(services.ErrPersistenceFailed, err)
		}
		r.logger.Info("seeded default personas", zap.Int("count", len(personas)))
	}

	if _, ok := r.personas[r.activeID]; !ok {
		r.activeID = ""
		if len(r.order) > 0 {
			r.activeID = r.order[0]
		}
	}

	r.logger.Info("personas loaded",
		zap.Int("count", len(r.order)),
		zap.String("active", r.activeID),
	)
	return nil
}

// List returns all personas in insertion order.
func (r *Registry) List() []models.Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []models.Persona {
	out := make([]models.Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.personas[id].Clone())
	}
	return out
}

// Get returns the persona with the given id.
func (r *Registry) Get(id string) (models.Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.personas[id]
	if !ok {
		return models.Persona{}, false
	}
	return p.Clone(), true
}

// GetActive returns the active persona, if any.
func (r *Registry) GetActive() (models.Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.personas[r.activeID]
	if !ok {
		return models.Persona{}, false
	}
	return p.Clone(), true
}

// ActiveID returns the id of the active persona, or "" when none is set.
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// Switch makes id the active persona. Unknown ids leave the active slot unchanged.
func (r *Registry) Switch(id string) (models.Persona, error) {
	r.mu.Lock()
	p, ok := r.personas[id]
	if !ok {
		r.mu.Unlock()
		return models.Persona{}, services.Derive(services.ErrPersonaNotFound, nil).WithDetail("persona_id", id)
	}
	previous := r.activeID
	r.activeID = id
	r.mu.Unlock()

	r.metrics.RecordPersonaSwitch()
	r.logger.Info("active persona switched",
		zap.String("from", previous),
		zap.String("to", id),
	)
	return p.Clone(), nil
}

// Resolve returns the persona a request should run under. An explicit id wins
// and does not touch the active slot; an empty id falls back to the active persona.
func (r *Registry) Resolve(id string) (models.Persona, error) {
	if id != "" {
		p, ok := r.Get(id)
		if !ok {
			return models.Persona{}, services.Derive(services.ErrPersonaNotFound, nil).WithDetail("persona_id", id)
		}
		return p, nil
	}
	p, ok := r.GetActive()
	if !ok {
		return models.Persona{}, services.ErrNoActivePersona
	}
	return p, nil
}

// Create validates and adds a persona, then persists the full list. The
// in-memory insert is rolled back when persistence fails.
func (r *Registry) Create(p models.Persona) (models.Persona, error) {
	if err := p.Validate(); err != nil {
		return models.Persona{}, services.Derive(services.ErrInvalidPersona, err)
	}
	if p.GuardrailLevel == "" {
		p.GuardrailLevel = models.GuardrailLevelModerate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.personas[p.ID]; exists {
		return models.Persona{}, services.Derive(services.ErrDuplicatePersona, nil).WithDetail("persona_id", p.ID)
	}

	r.personas[p.ID] = p.Clone()
	r.order = append(r.order, p.ID)

	if err := r.store.Save(r.listLocked()); err != nil {
		delete(r.personas, p.ID)
		r.order = r.order[:len(r.order)-1]
		r.logger.Error("failed to persist persona", zap.String("persona_id", p.ID), zap.Error(err))
		return models.Persona{}, services.Derive(services.ErrPersistenceFailed, err)
	}

	if r.activeID == "" {
		r.activeID = p.ID
	}

	r.logger.Info("persona created", zap.String("persona_id", p.ID))
	return p.Clone(), nil
}

// CorpusFiles returns full paths of the persona's corpus files that exist
// under the corpora directory, in configured order.
func (r *Registry) CorpusFiles(id string) []string {
	p, ok := r.Get(id)
	if !ok {
		return nil
	}

	var paths []string
	for _, name := range p.CorpusFiles {
		path := filepath.Join(r.corporaDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			paths = append(paths, path)
		}
	}
	return paths
}

// CorpusTexts reads the persona's corpus fresh from disk, keyed by file name.
func (r *Registry) CorpusTexts(id string) (map[string]string, error) {
	texts := make(map[string]string)
	for _, path := range r.CorpusFiles(id) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, services.Derive(services.ErrCorpusUnreadable, fmt.Errorf("%s: %w", path, err))
		}
		texts[filepath.Base(path)] = string(data)
	}
	return texts, nil
}

// CorporaDir returns the directory corpus files are resolved against.
func (r *Registry) CorporaDir() string {
	return r.corporaDir
}

// PersonasUsing returns the ids of personas whose corpus lists the file name.
func (r *Registry) PersonasUsing(filename string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		for _, f := range r.personas[id].CorpusFiles {
			if f == filename {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}
