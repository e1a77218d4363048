package pubsubq

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	pubsub "google.golang.org/api/pubsub/v1"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/ports"
)

type Options struct {
	Project string
	Topic   string
	// CredentialsFile is a service account JSON key. Empty means Application
	// Default Credentials.
	CredentialsFile string
	// Endpoint points the client at an emulator; no credentials are sent.
	Endpoint string
	Timeout  time.Duration
}

// PubSubQueue publishes each job as one message on a Pub/Sub topic through
// the REST API.
type PubSubQueue struct {
	svc     *pubsub.Service
	topic   string
	timeout time.Duration
}

// TopicPath is the fully qualified topic name.
func TopicPath(project, topic string) string {
	return "projects/" + project + "/topics/" + topic
}

func Open(ctx context.Context, opt Options) (*PubSubQueue, error) {
	var opts []option.ClientOption
	switch {
	case opt.Endpoint != "":
		opts = append(opts,
			option.WithEndpoint(strings.TrimRight(opt.Endpoint, "/")+"/"),
			option.WithHTTPClient(&http.Client{Timeout: opt.Timeout}),
		)
	case opt.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(opt.CredentialsFile))
	default:
		ts, err := google.DefaultTokenSource(ctx, pubsub.PubsubScope)
		if err != nil {
			return nil, fmt.Errorf("google default credentials: %w", err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}

	svc, err := pubsub.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub service: %w", err)
	}
	return NewPubSubQueue(svc, TopicPath(opt.Project, opt.Topic), opt.Timeout), nil
}

func NewPubSubQueue(svc *pubsub.Service, topic string, timeout time.Duration) *PubSubQueue {
	return &PubSubQueue{svc: svc, topic: topic, timeout: timeout}
}

func (q *PubSubQueue) Backend() string { return "pubsub" }
func (q *PubSubQueue) Queue() string   { return q.topic }
func (q *PubSubQueue) Close() error    { return nil }

// Publish returns once Pub/Sub has assigned the message an id.
func (q *PubSubQueue) Publish(ctx context.Context, job v1.Record) (ports.Ack, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return ports.Ack{}, ports.Transport(fmt.Errorf("encode job: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	resp, err := q.svc.Projects.Topics.Publish(q.topic, &pubsub.PublishRequest{
		Messages: []*pubsub.PubsubMessage{{
			Data:       base64.StdEncoding.EncodeToString(body),
			Attributes: map[string]string{"job_id": job.JobID},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return ports.Ack{}, classify(err)
	}
	if len(resp.MessageIds) != 1 {
		return ports.Ack{}, ports.Rejected(fmt.Sprintf("expected 1 message id, got %d", len(resp.MessageIds)))
	}

	return ports.Ack{Backend: q.Backend(), Queue: q.topic, MessageID: resp.MessageIds[0]}, nil
}

// classify: a googleapi.Error carries the HTTP status and raw body of the
// answer; anything else never got one.
func classify(err error) *ports.PublishError {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return ports.Backend(gerr.Code, gerr.Body)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return ports.Transport(fmt.Errorf("%s: %w", uerr.Op, uerr.Err))
	}
	return ports.Transport(err)
}
