package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/sardine-ai/go-config-sync/model"
	"github.com/sirupsen/logrus"
)

// GitRepository stores the configuration as a JSON file inside a local git
// work tree. Every change is committed, which keeps a history of the
// settings.
type GitRepository struct {
	sync.Mutex                     // Serializes work tree access
	Name          string           // Name of the repository
	Dir           string           // Directory of the git work tree
	Path          string           // Path of the JSON file within the work tree
	AuthorName    string           // Commit author name
	AuthorEmail   string           // Commit author email
	gitRepository *git.Repository  // Opened (or initialized) repository
	fs            billy.Filesystem // Work tree filesystem
}

// NewGitRepository opens the repository at dir, initializing it when dir is
// not a git work tree yet.
func NewGitRepository(dir, path string) (*GitRepository, error) {
	r, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		logrus.WithField("dir", dir).Debug("initializing git repository")
		r, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open git repository: %w", err)
	}
	w, err := r.Worktree()
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = "config.json"
	}
	return &GitRepository{
		Name:          "git",
		Dir:           dir,
		Path:          path,
		AuthorName:    "configsync",
		AuthorEmail:   "configsync@localhost",
		gitRepository: r,
		fs:            w.Filesystem,
	}, nil
}

// GetName returns the name of the repository.
func (g *GitRepository) GetName() string {
	return g.Name
}

// Load reads the JSON file from the work tree.
func (g *GitRepository) Load(_ context.Context) (model.Config, error) {
	g.Lock()
	defer g.Unlock()

	file, err := g.fs.Open(g.Path)
	if errors.Is(err, os.ErrNotExist) {
		return model.Config{}, ErrNotFound
	}
	if err != nil {
		return model.Config{}, err
	}
	defer func(file billy.File) {
		err := file.Close()
		if err != nil {
			logrus.WithError(err).Error("error closing file")
		}
	}(file)

	data, err := io.ReadAll(file)
	if err != nil {
		return model.Config{}, err
	}
	return model.UnmarshalStored(data)
}

// Save writes the JSON file and commits it. Nothing is committed when the
// content did not change.
func (g *GitRepository) Save(_ context.Context, cfg model.Config) error {
	g.Lock()
	defer g.Unlock()

	data, err := encode(cfg)
	if err != nil {
		return err
	}
	if err := util.WriteFile(g.fs, g.Path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	w, err := g.gitRepository.Worktree()
	if err != nil {
		return err
	}
	if _, err := w.Add(g.Path); err != nil {
		return fmt.Errorf("stage config: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return err
	}
	if fileStatus, ok := status[g.Path]; !ok || fileStatus.Staging == git.Unmodified {
		logrus.Debug("config unchanged, nothing to commit")
		return nil
	}

	hash, err := w.Commit("Update configuration", &git.CommitOptions{
		Author: &object.Signature{
			Name:  g.AuthorName,
			Email: g.AuthorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit config: %w", err)
	}
	logrus.WithField("commit", hash.String()).Debug("committed config")
	return nil
}
