package source

import (
	"context"
	"sync"

	"github.com/sardine-ai/go-config-sync/model"
)

// MemoryRepository keeps the configuration in process memory.
type MemoryRepository struct {
	sync.RWMutex
	Name   string
	config *model.Config
}

// NewMemoryRepository returns a MemoryRepository, seeded with initial when
// it is not nil.
func NewMemoryRepository(initial *model.Config) *MemoryRepository {
	m := &MemoryRepository{Name: "memory"}
	if initial != nil {
		cfg := *initial
		m.config = &cfg
	}
	return m
}

// GetName returns the name of the repository.
func (m *MemoryRepository) GetName() string {
	return m.Name
}

// Load returns the stored configuration.
func (m *MemoryRepository) Load(_ context.Context) (model.Config, error) {
	m.RLock()
	defer m.RUnlock()
	if m.config == nil {
		return model.Config{}, ErrNotFound
	}
	return *m.config, nil
}

// Save replaces the stored configuration.
func (m *MemoryRepository) Save(_ context.Context, cfg model.Config) error {
	m.Lock()
	defer m.Unlock()
	m.config = &cfg
	return nil
}
