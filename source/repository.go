package source

import (
	"context"
	"errors"

	"github.com/sardine-ai/go-config-sync/model"
)

// ErrNotFound is returned by Load when the repository holds no configuration yet.
var ErrNotFound = errors.New("config not found")

// Repository persists the backend configuration snapshot. Save replaces the
// stored value as a whole.
type Repository interface {
	Load(ctx context.Context) (model.Config, error)
	Save(ctx context.Context, cfg model.Config) error
	GetName() string
}

// Watcher is implemented by repositories that can report changes made
// outside of Save. onChange is called after each change until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, onChange func()) error
}
