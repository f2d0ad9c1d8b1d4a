package client

import (
	"context"
	"fmt"
)

// Dispatcher delivers a named command to the backend and waits for its
// outcome. args is encoded as the command arguments; when reply is not nil
// the command result is decoded into it.
type Dispatcher interface {
	Invoke(ctx context.Context, command string, args, reply any) error
}

// CommandError is a failure reported by the backend for a command, as opposed
// to a failure to reach the backend at all.
type CommandError struct {
	Command string // Name of the command that failed
	Status  int    // HTTP status, zero for transports without one
	Message string // Error message returned by the backend
}

func (e *CommandError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("command %s failed (%d): %s", e.Command, e.Status, e.Message)
	}
	return fmt.Sprintf("command %s failed: %s", e.Command, e.Message)
}
