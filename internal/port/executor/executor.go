// Package executor defines the dispatch boundary: the gateway hands an
// authorized command to an executor and never observes its execution
// beyond the asynchronous result envelope.
package executor

import (
	"context"

	"github.com/Strob0t/TriggerGate/internal/port/messagequeue"
)

// Executor accepts authorized commands for execution.
type Executor interface {
	// Dispatch hands one command to the target named in the payload.
	// A returned error means the command was not accepted; the caller
	// owns surfacing that to the origin channel.
	Dispatch(ctx context.Context, p messagequeue.DispatchPayload) error

	// Cancel asks the executor to abandon an in-flight command.
	Cancel(ctx context.Context, deliveryID, reason string) error
}
