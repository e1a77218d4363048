package sqsq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/ports"
)

type fakeSQS struct {
	sqsiface.SQSAPI
	out   *sqs.SendMessageBatchOutput
	err   error
	calls int
	input *sqs.SendMessageBatchInput
}

func (f *fakeSQS) SendMessageBatchWithContext(_ aws.Context, in *sqs.SendMessageBatchInput, _ ...request.Option) (*sqs.SendMessageBatchOutput, error) {
	f.calls++
	f.input = in
	return f.out, f.err
}

func testRecord() v1.Record {
	return v1.Record{
		JobID:    "0123456789abcdef0123456789abcdef",
		AudioURL: "https://x/a.mp3",
		ImageURL: "https://x/i.png",
		Date:     "2025-01-24",
		FinalKey: "final-video-2025-01-24-01234567.mp4",
	}
}

const queueURL = "https://sqs.eu-west-1.amazonaws.com/123456789012/video-jobs"

func TestPublishAck(t *testing.T) {
	fake := &fakeSQS{out: &sqs.SendMessageBatchOutput{
		Successful: []*sqs.SendMessageBatchResultEntry{{Id: aws.String("0123456789abcdef0123456789abcdef"), MessageId: aws.String("msg-1")}},
	}}
	q := NewSQSQueue(fake, queueURL, time.Second)

	ack, err := q.Publish(context.Background(), testRecord())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.MessageID != "msg-1" || ack.Backend != "sqs" || ack.Queue != queueURL {
		t.Errorf("unexpected ack %+v", ack)
	}
	if fake.calls != 1 {
		t.Errorf("expected one call, got %d", fake.calls)
	}
	if len(fake.input.Entries) != 1 || aws.StringValue(fake.input.Entries[0].Id) != testRecord().JobID {
		t.Errorf("expected a single entry keyed by job id, got %v", fake.input.Entries)
	}
}

func TestPublishFailures(t *testing.T) {
	tests := []struct {
		name   string
		out    *sqs.SendMessageBatchOutput
		err    error
		kind   ports.PublishKind
		status int
	}{
		{
			name:   "request failure",
			err:    awserr.NewRequestFailure(awserr.New("AWS.SimpleQueueService.NonExistentQueue", "The specified queue does not exist", nil), 400, "req-1"),
			kind:   ports.KindBackend,
			status: 400,
		},
		{
			name: "transport",
			err:  awserr.New("RequestError", "send request failed", errors.New("connection refused")),
			kind: ports.KindTransport,
		},
		{
			name: "failed entry",
			out: &sqs.SendMessageBatchOutput{Failed: []*sqs.BatchResultErrorEntry{{
				Id: aws.String("x"), Code: aws.String("InvalidParameterValue"), Message: aws.String("bad body"), SenderFault: aws.Bool(true),
			}}},
			kind: ports.KindBackendRejected,
		},
		{
			name: "empty result",
			out:  &sqs.SendMessageBatchOutput{},
			kind: ports.KindBackendRejected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSQS{out: tt.out, err: tt.err}
			_, err := NewSQSQueue(fake, queueURL, time.Second).Publish(context.Background(), testRecord())

			pe, ok := ports.AsPublishError(err)
			if !ok {
				t.Fatalf("expected *PublishError, got %v", err)
			}
			if pe.Kind != tt.kind {
				t.Errorf("expected kind=%s, got %s", tt.kind, pe.Kind)
			}
			if pe.Status != tt.status {
				t.Errorf("expected status=%d, got %d", tt.status, pe.Status)
			}
			if fake.calls != 1 {
				t.Errorf("expected one call, got %d", fake.calls)
			}
		})
	}
}
