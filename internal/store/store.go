package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mwillis/wspool"
	"github.com/mwillis/wspool/internal/config"
)

// Store records pool runs and their per-task outcomes in Postgres.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// Run identifies one invocation of the pool.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
}

// Open creates a connection pool and verifies it with a ping.
func Open(ctx context.Context, cfg config.DBConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: pool, logger: logger}, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

// Ping verifies the connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// RecordRun inserts the run row and all outcomes. Outcome inserts use
// ON CONFLICT DO NOTHING so a retried recording never duplicates rows.
func (s *Store) RecordRun(ctx context.Context, run Run, outcomes []wspool.Outcome) error {
	start := time.Now()

	_, err := s.db.Exec(ctx, `
		INSERT INTO pool_runs (run_id, started_at, finished_at, tasks)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id) DO NOTHING
	`, run.ID, run.StartedAt, run.FinishedAt, len(outcomes))
	if err != nil {
		return fmt.Errorf("insert pool run: %w", err)
	}

	if len(outcomes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, out := range outcomes {
		kind, cause := failureColumns(out)
		batch.Queue(`
			INSERT INTO task_outcomes
				(run_id, task_id, url, final_state, failure_kind, error_cause,
				 attempts, messages_received, handler_errors, duration_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (task_id) DO NOTHING
		`, run.ID, out.TaskID, out.URL, out.FinalState.String(), kind, cause,
			out.Attempts, out.MessagesReceived, out.HandlerErrors,
			out.Duration.Milliseconds())
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	conflicts := 0
	for range outcomes {
		ct, err := br.Exec()
		if err != nil {
			return fmt.Errorf("insert task outcome: %w", err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	s.logger.Debug("recorded pool run",
		"run", run.ID.String(),
		"outcomes", len(outcomes),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)

	return nil
}

// failureColumns maps an outcome's error to nullable columns.
func failureColumns(out wspool.Outcome) (kind, cause *string) {
	if out.Err == nil {
		return nil, nil
	}
	c := out.Err.Error()
	cause = &c
	if k, ok := wspool.FailureKindOf(out.Err); ok {
		s := k.String()
		kind = &s
	}
	return kind, cause
}
