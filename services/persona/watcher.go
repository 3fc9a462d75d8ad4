package persona

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Invalidator drops cached retrieval state for a persona.
type Invalidator interface {
	Invalidate(personaID string)
}

// CorpusWatcher invalidates cached indices when a corpus file changes on disk.
type CorpusWatcher struct {
	watcher     *fsnotify.Watcher
	registry    *Registry
	invalidator Invalidator
	logger      *zap.Logger
}

// NewCorpusWatcher watches the registry's corpora directory.
func NewCorpusWatcher(registry *Registry, invalidator Invalidator, logger *zap.Logger) (*CorpusWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(registry.CorporaDir()); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", registry.CorporaDir(), err)
	}
	return &CorpusWatcher{
		watcher:     w,
		registry:    registry,
		invalidator: invalidator,
		logger:      logger,
	}, nil
}

// Run processes events until ctx is cancelled or the watcher is closed.
func (w *CorpusWatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.handle(filepath.Base(event.Name), event.Op)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("corpus watcher error", zap.Error(err))
		}
	}
}

func (w *CorpusWatcher) handle(filename string, op fsnotify.Op) {
	for _, id := range w.registry.PersonasUsing(filename) {
		w.invalidator.Invalidate(id)
		w.logger.Info("corpus changed, retrieval cache invalidated",
			zap.String("file", filename),
			zap.String("op", op.String()),
			zap.String("persona_id", id),
		)
	}
}

// Close stops the underlying watcher.
func (w *CorpusWatcher) Close() error {
	return w.watcher.Close()
}
