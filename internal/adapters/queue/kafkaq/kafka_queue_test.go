package kafkaq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/ports"
)

func TestNewKafkaQueueValidation(t *testing.T) {
	if _, err := NewKafkaQueue(nil, "video.jobs", time.Second); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaQueue([]string{"localhost:9092"}, "", time.Second); err == nil {
		t.Error("expected error without topic")
	}

	q, err := NewKafkaQueue([]string{"localhost:9092"}, "video.jobs", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer q.Close()
	if q.Backend() != "kafka" || q.Queue() != "video.jobs" {
		t.Errorf("unexpected identity %s/%s", q.Backend(), q.Queue())
	}
	w := q.writer.(*kafka.Writer)
	if w.RequiredAcks != kafka.RequireAll || w.MaxAttempts != 1 {
		t.Errorf("writer must wait for all replicas and make one attempt")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ports.PublishKind
	}{
		{"broker code", kafka.UnknownTopicOrPartition, ports.KindBackendRejected},
		{"write errors", kafka.WriteErrors{kafka.NotEnoughReplicas}, ports.KindBackendRejected},
		{"wrapped", fmt.Errorf("produce: %w", kafka.MessageSizeTooLarge), ports.KindBackendRejected},
		{"dial", errors.New("dial tcp 127.0.0.1:9092: connect: connection refused"), ports.KindTransport},
		{"deadline in batch", kafka.WriteErrors{context.DeadlineExceeded}, ports.KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pe := classify(tt.err)
			if pe.Kind != tt.kind {
				t.Errorf("expected kind=%s, got %s", tt.kind, pe.Kind)
			}
		})
	}
}

func TestClassifyBody(t *testing.T) {
	pe := classify(kafka.UnknownTopicOrPartition)
	if !strings.HasPrefix(pe.Body, "3 ") {
		t.Errorf("expected broker code in body, got %q", pe.Body)
	}
}

func TestPublishUnreachable(t *testing.T) {
	q, err := NewKafkaQueue([]string{"127.0.0.1:1"}, "video.jobs", 500*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	_, err = q.Publish(context.Background(), v1.Record{JobID: "0123456789abcdef0123456789abcdef"})
	if !ports.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

type fakeWriter struct {
	err  error
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestPublishWritesKeyedMessage(t *testing.T) {
	job := v1.Record{
		JobID:    "0123456789abcdef0123456789abcdef",
		AudioURL: "https://x/a.mp3",
		ImageURL: "https://x/i.png",
		Date:     "2025-01-24",
		FinalKey: "final-video-2025-01-24-01234567.mp4",
	}
	fw := &fakeWriter{}
	q := &KafkaQueue{writer: fw, topic: "video.jobs", timeout: time.Second}

	ack, err := q.Publish(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ack.MessageID != job.JobID || ack.Queue != "video.jobs" {
		t.Errorf("unexpected ack %+v", ack)
	}

	if len(fw.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(fw.msgs))
	}
	if string(fw.msgs[0].Key) != job.JobID {
		t.Errorf("expected job id key, got %q", fw.msgs[0].Key)
	}
	var got v1.Record
	if err := json.Unmarshal(fw.msgs[0].Value, &got); err != nil {
		t.Fatal(err)
	}
	if got != job {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestPublishBrokerRefusal(t *testing.T) {
	q := &KafkaQueue{writer: &fakeWriter{err: kafka.WriteErrors{kafka.TopicAuthorizationFailed}}, topic: "video.jobs", timeout: time.Second}

	_, err := q.Publish(context.Background(), v1.Record{JobID: "0123456789abcdef0123456789abcdef"})
	pe, ok := ports.AsPublishError(err)
	if !ok || pe.Kind != ports.KindBackendRejected || !strings.Contains(pe.Body, "29") {
		t.Fatalf("expected rejected with broker code, got %v", err)
	}
}
