package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sardine-ai/go-config-sync/model"
	"github.com/sardine-ai/go-config-sync/source"
	"github.com/sirupsen/logrus"
)

// Backend owns the active configuration. Updates replace it as a whole and
// are persisted to the repository before they become visible, so a failed
// update leaves the previous configuration in place.
type Backend struct {
	mu         sync.RWMutex
	current    model.Config
	repository source.Repository

	subsMu sync.Mutex
	subs   map[int]chan model.Config
	nextID int
}

// NewBackend loads the configuration from repository. When the repository is
// empty the default configuration is written to it first.
func NewBackend(ctx context.Context, repository source.Repository) (*Backend, error) {
	cfg, err := repository.Load(ctx)
	if errors.Is(err, source.ErrNotFound) {
		cfg = model.Default()
		if err := repository.Save(ctx, cfg); err != nil {
			return nil, fmt.Errorf("seed default config: %w", err)
		}
		logrus.WithField("repository", repository.GetName()).Info("seeded default config")
	} else if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return &Backend{
		current:    cfg,
		repository: repository,
		subs:       make(map[int]chan model.Config),
	}, nil
}

// Config returns the active configuration.
func (b *Backend) Config() model.Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// SetConfig persists cfg and makes it the active configuration.
func (b *Backend) SetConfig(ctx context.Context, cfg model.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.repository.Save(ctx, cfg); err != nil {
		return fmt.Errorf("persist config: %w", err)
	}
	b.current = cfg
	logrus.WithField("config", fmt.Sprintf("%+v", cfg)).Info("config replaced")
	b.notify(cfg)
	return nil
}

// Reload re-reads the repository and applies its content when it differs
// from the active configuration.
func (b *Backend) Reload(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cfg, err := b.repository.Load(ctx)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if cfg == b.current {
		return nil
	}
	b.current = cfg
	logrus.WithField("repository", b.repository.GetName()).Info("config reloaded")
	b.notify(cfg)
	return nil
}

// Watch reloads the configuration whenever the repository reports an
// external change. It blocks until ctx is done and returns immediately for
// repositories that cannot be watched.
func (b *Backend) Watch(ctx context.Context) error {
	w, ok := b.repository.(source.Watcher)
	if !ok {
		logrus.WithField("repository", b.repository.GetName()).Debug("repository cannot be watched")
		return nil
	}
	return w.Watch(ctx, func() {
		if err := b.Reload(ctx); err != nil {
			logrus.WithError(err).Error("error reloading config")
		}
	})
}

// Subscribe returns a channel receiving every configuration that becomes
// active. Only the latest value is kept for slow readers. The returned
// function unsubscribes and closes the channel.
func (b *Backend) Subscribe() (<-chan model.Config, func()) {
	ch := make(chan model.Config, 1)

	b.subsMu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs, id)
			close(ch)
			b.subsMu.Unlock()
		})
	}
}

func (b *Backend) notify(cfg model.Config) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for _, ch := range b.subs {
		// Replace a value the subscriber has not read yet.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- cfg:
		default:
		}
	}
}

// Register installs the configuration commands on r.
func (b *Backend) Register(r *Router) {
	r.Handle(model.CommandSetConfig, b.handleSetConfig)
	r.Handle(model.CommandGetConfig, func(context.Context, json.RawMessage) (any, error) {
		return b.Config(), nil
	})
	r.Handle(model.CommandAppReady, func(context.Context, json.RawMessage) (any, error) {
		cfg := b.Config()
		logrus.WithFields(logrus.Fields{
			"autoAccept": cfg.AutoAccept,
			"acceptWait": cfg.AcceptWait(),
		}).Info("app ready")
		return cfg, nil
	})
}

func (b *Backend) handleSetConfig(ctx context.Context, args json.RawMessage) (any, error) {
	var envelope struct {
		NewCfg json.RawMessage `json:"newCfg"`
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing arguments", model.ErrInvalidConfig)
	}
	if err := json.Unmarshal(args, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidConfig, err)
	}
	if len(envelope.NewCfg) == 0 {
		return nil, fmt.Errorf("%w: missing newCfg", model.ErrInvalidConfig)
	}
	cfg, err := model.Unmarshal(envelope.NewCfg)
	if err != nil {
		return nil, err
	}
	return nil, b.SetConfig(ctx, cfg)
}
