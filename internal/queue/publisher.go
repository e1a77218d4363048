package queue

import (
	"context"

	"vgate/internal/ports"
)

// Publisher is the queue contract used by the submit service.
// It is an alias to ports.QueuePublisher to keep call-sites simple.
type Publisher = ports.QueuePublisher

// Pinger is implemented by backends that hold a connection worth probing.
type Pinger interface {
	Ping(ctx context.Context) error
}
