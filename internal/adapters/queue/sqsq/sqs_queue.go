package sqsq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/ports"
)

// SQSQueue sends each job as a one-entry SendMessageBatch, the same batch
// shape the Cloudflare backend uses.
type SQSQueue struct {
	client   sqsiface.SQSAPI
	queueURL string
	timeout  time.Duration
}

// Open builds an SQS client from the default credential chain. endpoint is
// optional and points the client at a local emulator.
func Open(region, endpoint, queueURL string, timeout time.Duration) (*SQSQueue, error) {
	cfg := &aws.Config{
		Region:     aws.String(region),
		MaxRetries: aws.Int(0),
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if endpoint != "" {
		cfg.Endpoint = aws.String(endpoint)
	}

	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return NewSQSQueue(sqs.New(sess), queueURL, timeout), nil
}

func NewSQSQueue(client sqsiface.SQSAPI, queueURL string, timeout time.Duration) *SQSQueue {
	return &SQSQueue{client: client, queueURL: queueURL, timeout: timeout}
}

func (q *SQSQueue) Backend() string { return "sqs" }
func (q *SQSQueue) Queue() string   { return q.queueURL }
func (q *SQSQueue) Close() error    { return nil }

func (q *SQSQueue) Publish(ctx context.Context, job v1.Record) (ports.Ack, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return ports.Ack{}, ports.Transport(fmt.Errorf("encode job: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	out, err := q.client.SendMessageBatchWithContext(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(q.queueURL),
		Entries: []*sqs.SendMessageBatchRequestEntry{{
			Id:          aws.String(job.JobID),
			MessageBody: aws.String(string(body)),
		}},
	})
	if err != nil {
		return ports.Ack{}, classify(err)
	}

	// A batch call succeeds even when its entries fail.
	if len(out.Failed) > 0 {
		f := out.Failed[0]
		return ports.Ack{}, ports.Rejected(aws.StringValue(f.Code) + ": " + aws.StringValue(f.Message))
	}
	if len(out.Successful) == 0 {
		return ports.Ack{}, ports.Rejected("no result entries")
	}

	return ports.Ack{
		Backend:   q.Backend(),
		Queue:     q.queueURL,
		MessageID: aws.StringValue(out.Successful[0].MessageId),
	}, nil
}

// classify: an HTTP status from SQS is a backend error; anything without one
// (RequestError, RequestCanceled, dial) is transport.
func classify(err error) *ports.PublishError {
	var rf awserr.RequestFailure
	if errors.As(err, &rf) {
		return ports.Backend(rf.StatusCode(), rf.Code()+": "+rf.Message())
	}
	return ports.Transport(err)
}
