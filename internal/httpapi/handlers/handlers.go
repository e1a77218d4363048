package handlers

import (
	"context"

	"vgate/internal/jobs"
	"vgate/internal/pkg/logger"
	"vgate/internal/ports"
)

// Submitter is the part of jobs.Service the handlers need.
type Submitter interface {
	Submit(ctx context.Context, req jobs.JobRequest) (jobs.Submission, error)
}

type Deps struct {
	Jobs        Submitter
	Queue       ports.QueuePublisher
	ServiceName string
	Log         *logger.Logger
}

type Handler struct {
	jobs        Submitter
	queue       ports.QueuePublisher
	serviceName string
	log         *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	name := d.ServiceName
	if name == "" {
		name = "video-builder-web"
	}
	return &Handler{
		jobs:        d.Jobs,
		queue:       d.Queue,
		serviceName: name,
		log:         log.WithComponent("http"),
	}
}

// Log is the handler logger, used when wrapping error-returning handlers.
func (h *Handler) Log() *logger.Logger { return h.log }
