package queue

import (
	"context"
	"fmt"

	"vgate/internal/adapters/queue/cloudflare"
	"vgate/internal/adapters/queue/kafkaq"
	"vgate/internal/adapters/queue/postgres"
	"vgate/internal/adapters/queue/pubsubq"
	"vgate/internal/adapters/queue/redisq"
	"vgate/internal/adapters/queue/sqsq"
	"vgate/internal/config"
	"vgate/internal/pkg/logger"
)

// NewPublisher builds the publisher for cfg.Backend. Nothing is dialed except
// for postgres with AutoMigrate, which creates the queue table up front.
// Pub/Sub resolves its credentials here.
func NewPublisher(ctx context.Context, cfg config.Queue, log *logger.Logger) (Publisher, error) {
	log = log.WithQueue(cfg.Backend, cfg.Name())
	var (
		p   Publisher
		err error
	)

	switch cfg.Backend {
	case config.BackendCloudflare:
		p = cloudflare.New(cloudflare.Options{
			BaseURL:   cfg.Cloudflare.BaseURL,
			AccountID: cfg.Cloudflare.AccountID,
			QueueName: cfg.Cloudflare.QueueName,
			APIToken:  cfg.Cloudflare.APIToken,
			Timeout:   cfg.Timeout,
		})

	case config.BackendRedis:
		rdb, cerr := redisq.Connect(cfg.Redis.Addr, cfg.Timeout)
		if cerr != nil {
			return nil, cerr
		}
		p = redisq.NewRedisQueue(rdb, cfg.Redis.List, cfg.Timeout)

	case config.BackendPostgres:
		pq, oerr := postgres.Open(ctx, cfg.Postgres.DatabaseURL, cfg.Postgres.Table, cfg.Timeout)
		if oerr != nil {
			return nil, oerr
		}
		if cfg.Postgres.AutoMigrate {
			if err := pq.EnsureSchema(ctx); err != nil {
				pq.Close()
				return nil, err
			}
			log.Info("queue table ready", "table", cfg.Postgres.Table)
		}
		p = pq

	case config.BackendKafka:
		p, err = kafkaq.NewKafkaQueue(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Timeout)

	case config.BackendSQS:
		p, err = sqsq.Open(cfg.SQS.Region, cfg.SQS.Endpoint, cfg.SQS.QueueURL, cfg.Timeout)

	case config.BackendPubSub:
		p, err = pubsubq.Open(ctx, pubsubq.Options{
			Project:         cfg.PubSub.Project,
			Topic:           cfg.PubSub.Topic,
			CredentialsFile: cfg.PubSub.CredentialsFile,
			Endpoint:        cfg.PubSub.Endpoint,
			Timeout:         cfg.Timeout,
		})

	default:
		return nil, fmt.Errorf("unknown queue backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	log.Info("queue publisher configured", "timeout", cfg.Timeout.String())
	return p, nil
}
