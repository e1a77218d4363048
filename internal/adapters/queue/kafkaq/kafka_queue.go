package kafkaq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/ports"
)

// messageWriter is the part of *kafka.Writer the queue uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue writes each job as one message keyed by job_id, so every record
// for a job lands on the same partition.
type KafkaQueue struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

func NewKafkaQueue(brokers []string, topic string, timeout time.Duration) (*KafkaQueue, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka queue requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka queue requires a topic")
	}
	return &KafkaQueue{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
			MaxAttempts:  1,
			BatchSize:    1,
			WriteTimeout: timeout,
			ReadTimeout:  timeout,
			Transport:    &kafka.Transport{DialTimeout: timeout},
		},
		topic:   topic,
		timeout: timeout,
	}, nil
}

func (q *KafkaQueue) Backend() string { return "kafka" }
func (q *KafkaQueue) Queue() string   { return q.topic }
func (q *KafkaQueue) Close() error    { return q.writer.Close() }

// Publish returns once all in-sync replicas have the message.
func (q *KafkaQueue) Publish(ctx context.Context, job v1.Record) (ports.Ack, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return ports.Ack{}, ports.Transport(fmt.Errorf("encode job: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	err = q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(job.JobID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return ports.Ack{}, classify(err)
	}
	return ports.Ack{Backend: q.Backend(), Queue: q.topic, MessageID: job.JobID}, nil
}

// classify: a broker error code means the broker answered and refused the
// produce request. Dial and timeout errors are transport failures.
func classify(err error) *ports.PublishError {
	var werrs kafka.WriteErrors
	if errors.As(err, &werrs) {
		for _, e := range werrs {
			if e != nil {
				err = e
				break
			}
		}
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return ports.Rejected(fmt.Sprintf("%d %s: %s", int(kerr), kerr.Title(), kerr.Description()))
	}
	return ports.Transport(err)
}
