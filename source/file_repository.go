package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/sardine-ai/go-config-sync/model"
	"github.com/sirupsen/logrus"
)

// FileRepository stores the configuration as a JSON file on local disk.
type FileRepository struct {
	Name string // Name of the repository
	Path string // Path of the JSON configuration file
}

// NewFileRepository returns a FileRepository for path. An empty path selects
// DefaultConfigPath.
func NewFileRepository(path string) (*FileRepository, error) {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	return &FileRepository{Name: "file", Path: path}, nil
}

// DefaultConfigPath returns config.json inside the per-user configuration
// directory of the application.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config dir: %w", err)
	}
	return filepath.Join(dir, "reveal", "config.json"), nil
}

// GetName returns the name of the repository.
func (f *FileRepository) GetName() string {
	return f.Name
}

// Load reads and decodes the JSON file.
func (f *FileRepository) Load(_ context.Context) (model.Config, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.Config{}, ErrNotFound
	}
	if err != nil {
		logrus.Debug("error reading file")
		return model.Config{}, err
	}
	return model.UnmarshalStored(data)
}

// Save writes the configuration through a pending file that is renamed over
// the old one, so readers never observe a partial write.
func (f *FileRepository) Save(_ context.Context, cfg model.Config) error {
	data, err := encode(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(f.Path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logrus.WithError(err).Debug("cleanup pending config file")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write config data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

// Watch reports writes to the configuration file until ctx is done. The
// parent directory is watched since atomic saves replace the file itself.
func (f *FileRepository) Watch(ctx context.Context, onChange func()) error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(f.Path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logrus.WithField("path", f.Path).Debug("config file changed")
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Error("error watching config file")
		}
	}
}

func encode(cfg model.Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
