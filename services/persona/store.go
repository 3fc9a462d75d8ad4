package persona

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/upb/sme-plug/models"
)

// ErrStoreEmpty is returned by Load when nothing has been persisted yet.
var ErrStoreEmpty = errors.New("persona store is empty")

// Store persists the persona list.
type Store interface {
	Load() ([]models.Persona, error)
	Save(personas []models.Persona) error
}

// FileStore keeps personas in a single JSON or YAML file, chosen by extension.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path. Files ending in .yaml or .yml
// are YAML; anything else is JSON.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads the persona list. A missing file yields ErrStoreEmpty.
func (s *FileStore) Load() ([]models.Persona, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrStoreEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var personas []models.Persona
	if s.isYAML() {
		err = yaml.Unmarshal(data, &personas)
	} else {
		err = json.Unmarshal(data, &personas)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return personas, nil
}

// Save writes the persona list atomically through a temporary file.
func (s *FileStore) Save(personas []models.Persona) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(personas)
	} else {
		data, err = json.MarshalIndent(personas, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode personas: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".namespaces-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
