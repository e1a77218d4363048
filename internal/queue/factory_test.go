package queue

import (
	"context"
	"testing"
	"time"

	"vgate/internal/config"
	"vgate/internal/pkg/logger"
)

func TestNewPublisher(t *testing.T) {
	log := logger.NewNop()

	tests := []struct {
		name    string
		cfg     config.Queue
		backend string
		queue   string
		pinger  bool
	}{
		{
			name: "cloudflare",
			cfg: config.Queue{
				Backend: config.BackendCloudflare,
				Timeout: time.Second,
				Cloudflare: config.Cloudflare{
					AccountID: "acct", QueueName: "video-jobs", APIToken: "tok", BaseURL: config.DefaultCloudflareBaseURL,
				},
			},
			backend: "cloudflare",
			queue:   "video-jobs",
		},
		{
			name:    "redis",
			cfg:     config.Queue{Backend: config.BackendRedis, Timeout: time.Second, Redis: config.Redis{Addr: "localhost:6379", List: "vgate:jobs"}},
			backend: "redis",
			queue:   "vgate:jobs",
			pinger:  true,
		},
		{
			name: "postgres",
			cfg: config.Queue{Backend: config.BackendPostgres, Timeout: time.Second, Postgres: config.Postgres{
				DatabaseURL: "postgres://vgate@localhost:5432/vgate", Table: "video_jobs",
			}},
			backend: "postgres",
			queue:   "video_jobs",
			pinger:  true,
		},
		{
			name:    "kafka",
			cfg:     config.Queue{Backend: config.BackendKafka, Timeout: time.Second, Kafka: config.Kafka{Brokers: []string{"localhost:9092"}, Topic: "video.jobs"}},
			backend: "kafka",
			queue:   "video.jobs",
		},
		{
			name: "sqs",
			cfg: config.Queue{Backend: config.BackendSQS, Timeout: time.Second, SQS: config.SQS{
				QueueURL: "http://localhost:9324/000000000000/video-jobs", Region: "eu-west-1", Endpoint: "http://localhost:9324",
			}},
			backend: "sqs",
			queue:   "http://localhost:9324/000000000000/video-jobs",
		},
		{
			name: "pubsub emulator",
			cfg: config.Queue{Backend: config.BackendPubSub, Timeout: time.Second, PubSub: config.PubSub{
				Project: "media-prod", Topic: "video-jobs", Endpoint: "http://localhost:8085",
			}},
			backend: "pubsub",
			queue:   "projects/media-prod/topics/video-jobs",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPublisher(context.Background(), tt.cfg, log)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer p.Close()

			if p.Backend() != tt.backend || p.Queue() != tt.queue {
				t.Errorf("expected %s/%s, got %s/%s", tt.backend, tt.queue, p.Backend(), p.Queue())
			}
			if _, ok := p.(Pinger); ok != tt.pinger {
				t.Errorf("expected Pinger=%v", tt.pinger)
			}
		})
	}
}

func TestNewPublisherUnknown(t *testing.T) {
	_, err := NewPublisher(context.Background(), config.Queue{Backend: "carrier-pigeon", Timeout: time.Second}, logger.NewNop())
	if err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
