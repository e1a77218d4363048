package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/ports"
)

// RedisQueue LPUSHes job records onto a list; workers BRPOP from the other end.
type RedisQueue struct {
	rdb       *redis.Client
	queueName string
	timeout   time.Duration
}

// Connect builds a client from a redis:// URL or a host:port address.
// Retries are disabled: a publish is a single attempt.
func Connect(addr string, timeout time.Duration) (*redis.Client, error) {
	var opt *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: addr}
	}
	opt.MaxRetries = -1
	opt.DialTimeout = timeout
	opt.ReadTimeout = timeout
	opt.WriteTimeout = timeout
	opt.ContextTimeoutEnabled = true
	return redis.NewClient(opt), nil
}

func NewRedisQueue(rdb *redis.Client, queueName string, timeout time.Duration) *RedisQueue {
	return &RedisQueue{rdb: rdb, queueName: queueName, timeout: timeout}
}

func (q *RedisQueue) Backend() string { return "redis" }
func (q *RedisQueue) Queue() string   { return q.queueName }
func (q *RedisQueue) Close() error    { return q.rdb.Close() }

// Ping checks connectivity for the health endpoint.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

// Publish pushes the JSON record. LPUSH returning means Redis applied the write.
func (q *RedisQueue) Publish(ctx context.Context, job v1.Record) (ports.Ack, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return ports.Ack{}, ports.Transport(fmt.Errorf("encode job: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	if err := q.rdb.LPush(ctx, q.queueName, body).Err(); err != nil {
		return ports.Ack{}, classify(err)
	}
	return ports.Ack{Backend: q.Backend(), Queue: q.queueName, MessageID: job.JobID}, nil
}

// classify: an error reply (WRONGTYPE, OOM, READONLY...) means Redis was
// reached and refused; anything else never got an answer.
func classify(err error) *ports.PublishError {
	var replyErr redis.Error
	if errors.As(err, &replyErr) {
		return ports.Rejected(replyErr.Error())
	}
	return ports.Transport(err)
}
