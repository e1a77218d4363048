package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	v1 "vgate/internal/contracts/videojob/v1"
	"vgate/internal/ports"
)

// db is the part of *pgxpool.Pool the queue uses.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresQueue appends job records to a queue table. Workers claim rows with
// SELECT ... FOR UPDATE SKIP LOCKED.
type PostgresQueue struct {
	pool    db
	table   string
	ident   string
	timeout time.Duration
}

// Open parses databaseURL and builds a pool. No connection is made until the
// first publish or Ping.
func Open(ctx context.Context, databaseURL, table string, timeout time.Duration) (*PostgresQueue, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.ConnectTimeout = timeout
	cfg.MaxConns = 8

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return NewPostgresQueue(pool, table, timeout), nil
}

func NewPostgresQueue(pool *pgxpool.Pool, table string, timeout time.Duration) *PostgresQueue {
	return newQueue(pool, table, timeout)
}

func newQueue(pool db, table string, timeout time.Duration) *PostgresQueue {
	return &PostgresQueue{
		pool:    pool,
		table:   table,
		ident:   quoteTable(table),
		timeout: timeout,
	}
}

func (q *PostgresQueue) Backend() string { return "postgres" }
func (q *PostgresQueue) Queue() string   { return q.table }

func (q *PostgresQueue) Close() error {
	q.pool.Close()
	return nil
}

// Ping checks the connection and that the queue table exists.
func (q *PostgresQueue) Ping(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, `SELECT 1 FROM `+q.ident+` LIMIT 0`)
	if IsUndefinedTable(err) {
		return fmt.Errorf("queue table %s does not exist", q.table)
	}
	return err
}

// EnsureSchema creates the queue table if it does not exist.
func (q *PostgresQueue) EnsureSchema(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+q.ident+` (
			id          BIGSERIAL PRIMARY KEY,
			job_id      TEXT NOT NULL UNIQUE,
			body        JSONB NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			claimed_at  TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("ensure queue table %s: %w", q.table, err)
	}
	return nil
}

// Publish inserts one row. The commit is the acknowledgement.
func (q *PostgresQueue) Publish(ctx context.Context, job v1.Record) (ports.Ack, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return ports.Ack{}, ports.Transport(fmt.Errorf("encode job: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	var id int64
	err = q.pool.QueryRow(ctx,
		`INSERT INTO `+q.ident+` (job_id, body, enqueued_at)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		job.JobID, string(body), time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return ports.Ack{}, classify(err)
	}

	return ports.Ack{Backend: q.Backend(), Queue: q.table, MessageID: strconv.FormatInt(id, 10)}, nil
}

// classify: a server error response means the insert was refused; anything
// else (dial, TLS, pool timeout) never reached a statement result.
func classify(err error) *ports.PublishError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return ports.Rejected(pgErr.Code + ": " + pgErr.Message)
	}
	return ports.Transport(err)
}

// IsUndefinedTable reports a 42P01 undefined_table error.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}

// quoteTable quotes a table name, optionally schema-qualified.
func quoteTable(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}
