// Package activationstore persists completed Activation records, the
// durable record-of-execution spec.md §6 requires a result ack to be
// backed by, using a pgxpool connection pool.
package activationstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oriys/zygote/internal/domain"
)

// Store persists activation records. StoreActivation is called from the
// Proxy's ackAndPersist off-mailbox goroutine; it must be safe for
// concurrent use across many containers' proxies.
type Store interface {
	StoreActivation(ctx context.Context, activation domain.Activation) error
}

// PostgresStore is a pgxpool-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the activations table
// exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS activations (
			activation_id   TEXT PRIMARY KEY,
			transaction_id  TEXT NOT NULL,
			namespace       TEXT NOT NULL,
			action_name     TEXT NOT NULL,
			init_duration_ns BIGINT NOT NULL,
			run_duration_ns  BIGINT NOT NULL,
			response        JSONB,
			is_timeout      BOOLEAN NOT NULL,
			success         BOOLEAN NOT NULL,
			error_message   TEXT,
			logs_pending    BOOLEAN NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *PostgresStore) StoreActivation(ctx context.Context, a domain.Activation) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activations
			(activation_id, transaction_id, namespace, action_name, init_duration_ns, run_duration_ns, response, is_timeout, success, error_message, logs_pending)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (activation_id) DO UPDATE SET
			response = EXCLUDED.response,
			is_timeout = EXCLUDED.is_timeout,
			success = EXCLUDED.success,
			error_message = EXCLUDED.error_message,
			logs_pending = EXCLUDED.logs_pending
	`, a.ActivationID, a.TransactionID, a.Namespace, a.ActionName, a.InitDuration.Nanoseconds(), a.RunDuration.Nanoseconds(), a.Response, a.IsTimeout, a.Success, a.ErrorMessage, a.LogsPending)
	return err
}
