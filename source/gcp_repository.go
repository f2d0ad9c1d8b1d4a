package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/sardine-ai/go-config-sync/model"
	"github.com/sirupsen/logrus"
)

// GcpStorageRepository stores the configuration as a JSON object within a
// GCS bucket.
type GcpStorageRepository struct {
	Name          string          // Name of the repository
	BucketName    string          // Name of the GCS bucket
	ObjectName    string          // Name of the JSON object within the bucket
	Client        *storage.Client // GCS client instance
	clientOnce    sync.Once       // Ensures client is initialized only once
	clientInitErr error           // Stores error from client initialization
}

// GetName returns the name of the repository.
func (g *GcpStorageRepository) GetName() string {
	return g.Name
}

func (g *GcpStorageRepository) client(ctx context.Context) (*storage.Client, error) {
	// Thread-safe client initialization using sync.Once (only if client not pre-configured)
	if g.Client == nil {
		g.clientOnce.Do(func() {
			g.Client, g.clientInitErr = storage.NewClient(ctx)
		})
		if g.clientInitErr != nil {
			return nil, g.clientInitErr
		}
	}
	return g.Client, nil
}

// Load reads the JSON object from the bucket.
func (g *GcpStorageRepository) Load(ctx context.Context) (model.Config, error) {
	client, err := g.client(ctx)
	if err != nil {
		return model.Config{}, err
	}

	reader, err := client.Bucket(g.BucketName).Object(g.ObjectName).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return model.Config{}, ErrNotFound
	}
	if err != nil {
		return model.Config{}, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return model.Config{}, err
	}
	return model.UnmarshalStored(data)
}

// Save uploads the configuration, replacing the object.
func (g *GcpStorageRepository) Save(ctx context.Context, cfg model.Config) error {
	client, err := g.client(ctx)
	if err != nil {
		return err
	}
	data, err := encode(cfg)
	if err != nil {
		return err
	}

	w := client.Bucket(g.BucketName).Object(g.ObjectName).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		if cerr := w.Close(); cerr != nil {
			logrus.WithError(cerr).Debug("error closing GCS writer")
		}
		return fmt.Errorf("upload config: %w", err)
	}
	// The object only becomes visible once the writer is closed.
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}
	return nil
}
