package jobs

import (
	"context"
	"time"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/pkg/errors"
	"vgate/internal/pkg/logger"
	"vgate/internal/ports"
)

// Submission is a job the backend has durably accepted.
type Submission struct {
	Record v1.Record
	Ack    ports.Ack
}

type Deps struct {
	Publisher ports.QueuePublisher
	Builder   *Builder
	Log       *logger.Logger
}

// Service builds a job and publishes it, one backend attempt per call.
type Service struct {
	publisher ports.QueuePublisher
	builder   *Builder
	log       *logger.Logger
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	b := d.Builder
	if b == nil {
		b = NewBuilder(nil)
	}
	return &Service{
		publisher: d.Publisher,
		builder:   b,
		log:       log.WithComponent("jobs"),
	}
}

// Submit validates req, builds its record and enqueues it. Invalid input never
// reaches the publisher. A failed publish is not retried: calling Submit again
// creates a new job id.
func (s *Service) Submit(ctx context.Context, req JobRequest) (Submission, error) {
	rec, err := s.builder.Build(req)
	if err != nil {
		if errors.IsCode(err, errors.CodeValidation) {
			s.log.FromContext(ctx).Debug("job rejected", "field", errors.GetFields(err)["field"])
		} else {
			s.log.LogError(ctx, "job build failed", err)
		}
		return Submission{}, err
	}

	ctx = logger.ContextWithJobID(ctx, rec.JobID)
	log := s.log.FromContext(ctx).WithQueue(s.publisher.Backend(), s.publisher.Queue())

	start := time.Now()
	ack, err := s.publisher.Publish(ctx, rec)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Error("enqueue failed", "error", err.Error(), "duration_ms", elapsed)
		return Submission{}, publishFailure(err, s.publisher.Backend())
	}

	log.Info("job enqueued",
		"final_key", rec.FinalKey,
		"message_id", ack.MessageID,
		"duration_ms", elapsed,
	)
	return Submission{Record: rec, Ack: ack}, nil
}

// publishFailure maps a publish error onto the gateway's error codes.
// Transport problems are retryable (503); everything the backend said is 502.
func publishFailure(err error, backend string) error {
	pe, ok := ports.AsPublishError(err)
	if !ok {
		return errors.Wrap(err, "jobs.submit", "enqueue failed").
			WithField("backend", backend).
			WithField("cause", err.Error())
	}

	switch pe.Kind {
	case ports.KindTransport:
		// Adapters strip credentials and endpoints from transport errors.
		cause := "unknown"
		if pe.Err != nil {
			cause = pe.Err.Error()
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.submit", "queue backend unreachable").
			WithFields(map[string]any{
				"backend":   backend,
				"retryable": true,
				"cause":     cause,
			})
	case ports.KindBackend:
		return errors.WrapWithCode(err, errors.CodeQueue, "jobs.submit", "queue backend returned an error").
			WithFields(map[string]any{
				"backend":        backend,
				"backend_status": pe.Status,
				"backend_body":   pe.Body,
			})
	default:
		return errors.WrapWithCode(err, errors.CodeQueue, "jobs.submit", "queue backend rejected the job").
			WithFields(map[string]any{
				"backend":      backend,
				"backend_body": pe.Body,
			})
	}
}
