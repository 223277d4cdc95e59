// Package channels defines the ingress adapter contract.
//
// The core is identical whether updates arrive by long polling or by
// webhook; adapters hide that behind one interface.
package channels

import (
	"context"

	"github.com/solacebot/solace/pkg/models"
)

// Adapter is the interface a messaging platform adapter implements.
type Adapter interface {
	// Start begins receiving messages. It should authenticate,
	// establish connections, and return once the receive loop is
	// running in the background.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter, waiting for the receive
	// loop to drain or the context to expire.
	Stop(ctx context.Context) error

	// Send delivers a rendered reply to a user. Fire-and-forget from
	// the caller's perspective: a failed send is reported, not retried.
	Send(ctx context.Context, msg *models.Message) error

	// Typing signals a typing indicator to the user, where the
	// platform supports one. Best effort.
	Typing(ctx context.Context, userID string) error

	// Messages returns the inbound message stream. The channel is
	// closed when the adapter stops.
	Messages() <-chan *models.Message

	// Type returns the channel type.
	Type() models.ChannelType

	// Status returns the current connection status.
	Status() Status

	// Metrics returns the current counters snapshot.
	Metrics() MetricsSnapshot
}

// Status represents the connection status of a channel.
type Status struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	LastPing  int64  `json:"last_ping,omitempty"` // Unix timestamp
}
