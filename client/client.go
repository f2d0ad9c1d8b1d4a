package client

import (
	"context"

	"github.com/sardine-ai/go-config-sync/model"
	"github.com/sirupsen/logrus"
)

// ConfigSync pushes configuration snapshots to the backend. It holds no
// configuration state of its own; every call is a single exchange through
// the Dispatcher.
//
// Concurrent calls are not sequenced. When two updates are in flight the
// backend may apply them in either order.
type ConfigSync struct {
	dispatcher Dispatcher
}

// NewConfigSync creates a ConfigSync that sends commands through d.
func NewConfigSync(d Dispatcher) *ConfigSync {
	return &ConfigSync{dispatcher: d}
}

// UpdateConfig replaces the backend configuration with cfg. It returns once
// the backend has acknowledged the snapshot, or with the dispatcher's error
// unchanged when the command failed. Nothing is retried.
func (c *ConfigSync) UpdateConfig(ctx context.Context, cfg model.Config) error {
	err := c.dispatcher.Invoke(ctx, model.CommandSetConfig, model.SetConfigArgs{NewCfg: cfg}, nil)
	if err != nil {
		logrus.WithError(err).WithField("command", model.CommandSetConfig).Debug("config update failed")
		return err
	}
	return nil
}

// GetConfig returns the configuration currently held by the backend.
func (c *ConfigSync) GetConfig(ctx context.Context) (model.Config, error) {
	return c.fetch(ctx, model.CommandGetConfig)
}

// AppReady tells the backend the UI has started and returns the configuration
// the UI should render.
func (c *ConfigSync) AppReady(ctx context.Context) (model.Config, error) {
	return c.fetch(ctx, model.CommandAppReady)
}

func (c *ConfigSync) fetch(ctx context.Context, command string) (model.Config, error) {
	var cfg model.Config
	if err := c.dispatcher.Invoke(ctx, command, nil, &cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}
