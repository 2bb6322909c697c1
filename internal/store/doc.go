// Package store persists pool runs and per-task outcomes to PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE pool_runs (
//	    run_id      UUID PRIMARY KEY,
//	    started_at  TIMESTAMPTZ NOT NULL,
//	    finished_at TIMESTAMPTZ NOT NULL,
//	    tasks       INT NOT NULL
//	);
//
//	CREATE TABLE task_outcomes (
//	    run_id            UUID NOT NULL REFERENCES pool_runs (run_id),
//	    task_id           UUID PRIMARY KEY,
//	    url               TEXT NOT NULL,
//	    final_state       TEXT NOT NULL,
//	    failure_kind      TEXT,
//	    error_cause       TEXT,
//	    attempts          INT NOT NULL,
//	    messages_received BIGINT NOT NULL,
//	    handler_errors    BIGINT NOT NULL,
//	    duration_ms       BIGINT NOT NULL
//	);
package store
