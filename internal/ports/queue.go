package ports

import (
	"context"
	"errors"
	"fmt"

	v1 "vgate/internal/contracts/videojob/v1"
)

// Ack confirms that the backend durably accepted a job.
type Ack struct {
	Backend string
	Queue   string
	// MessageID is the backend-assigned id when the backend returns one.
	MessageID string
}

// QueuePublisher: implementations (cloudflare, redis, postgres, kafka, sqs).
// Publish makes exactly one attempt and never retries. Implementations must be
// safe for concurrent use.
type QueuePublisher interface {
	Backend() string
	Queue() string

	// Publish returns an Ack, or a *PublishError describing why the job was not accepted.
	Publish(ctx context.Context, job v1.Record) (Ack, error)
	Close() error
}

// PublishKind classifies a failed publish.
type PublishKind string

const (
	// KindTransport: the backend could not be reached (dial, DNS, TLS, timeout).
	KindTransport PublishKind = "transport"
	// KindBackend: the backend answered with a non-success status.
	KindBackend PublishKind = "backend"
	// KindBackendRejected: the backend answered with success status but declined the batch.
	KindBackendRejected PublishKind = "backend_rejected"
)

// PublishError is the only error type returned by QueuePublisher.Publish.
type PublishError struct {
	Kind PublishKind
	// Status is the backend status code; 0 when the backend has none.
	Status int
	// Body is the raw backend response, kept verbatim for diagnostics.
	Body string
	Err  error
}

func (e *PublishError) Error() string {
	switch e.Kind {
	case KindBackend:
		return fmt.Sprintf("queue backend error: status=%d body=%s", e.Status, e.Body)
	case KindBackendRejected:
		return fmt.Sprintf("queue backend rejected batch: body=%s", e.Body)
	default:
		if e.Err != nil {
			return "queue transport error: " + e.Err.Error()
		}
		return "queue transport error"
	}
}

func (e *PublishError) Unwrap() error { return e.Err }

// Transport builds a KindTransport error.
func Transport(err error) *PublishError {
	return &PublishError{Kind: KindTransport, Err: err}
}

// Backend builds a KindBackend error.
func Backend(status int, body string) *PublishError {
	return &PublishError{Kind: KindBackend, Status: status, Body: body}
}

// Rejected builds a KindBackendRejected error.
func Rejected(body string) *PublishError {
	return &PublishError{Kind: KindBackendRejected, Body: body}
}

// AsPublishError returns the *PublishError in err's chain, if any.
func AsPublishError(err error) (*PublishError, bool) {
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsTransport(err error) bool {
	pe, ok := AsPublishError(err)
	return ok && pe.Kind == KindTransport
}

func IsBackend(err error) bool {
	pe, ok := AsPublishError(err)
	return ok && pe.Kind == KindBackend
}

func IsRejected(err error) bool {
	pe, ok := AsPublishError(err)
	return ok && pe.Kind == KindBackendRejected
}
