package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrUnknownCommand is returned by Dispatch for commands nobody registered.
var ErrUnknownCommand = errors.New("unknown command")

// HandlerFunc runs one backend command. args is the raw JSON argument object
// and may be empty. The result is encoded as the command reply.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Router maps command names to their handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRouter returns a Router with no commands registered.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Handle registers h for name, replacing any previous handler.
func (r *Router) Handle(name string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Dispatch runs the handler registered for name.
func (r *Router) Dispatch(ctx context.Context, name string, args json.RawMessage) (any, error) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	result, err := h(ctx, args)
	if err != nil {
		logrus.WithError(err).WithField("command", name).Warn("command failed")
		return nil, err
	}
	logrus.WithField("command", name).Debug("command handled")
	return result, nil
}

// Commands returns the registered command names in sorted order.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
