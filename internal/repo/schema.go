package repo

import (
	"context"
	"fmt"
)

// schema — таблицы Operation State Manager.
//
// actions хранит неизменяемую часть (ActionInfo), operations — изменяемую (ActionState).
// seq задаёт порядок вставки и служит последним tie-break'ом.
const schema = `
CREATE TABLE IF NOT EXISTS actions (
	operation_id        TEXT PRIMARY KEY,
	seq                 BIGSERIAL,
	action_digest       TEXT NOT NULL,
	command_digest      TEXT NOT NULL,
	input_root_digest   TEXT NOT NULL,
	priority            INTEGER NOT NULL DEFAULT 0,
	timeout_ms          BIGINT NOT NULL DEFAULT 0,
	platform_properties JSONB NOT NULL DEFAULT '{}',
	load_ts             TIMESTAMPTZ NOT NULL,
	insert_ts           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS operations (
	operation_id     TEXT PRIMARY KEY REFERENCES actions(operation_id) ON DELETE CASCADE,
	stage            TEXT NOT NULL,
	worker_id        TEXT,
	requeues         INTEGER NOT NULL DEFAULT 0,
	last_lost_worker TEXT,
	exit_code        INTEGER NOT NULL DEFAULT 0,
	error            TEXT,
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ,
	updated_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_operations_stage ON operations (stage);
CREATE INDEX IF NOT EXISTS idx_operations_worker ON operations (worker_id) WHERE worker_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_actions_dispatch ON actions (priority DESC, insert_ts ASC, seq ASC);
`

// EnsureSchema создаёт таблицы, если их ещё нет.
func (r *OperationRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
