package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Foreman/internal/clock"
	"github.com/shaiso/Foreman/internal/domain"
	"github.com/shaiso/Foreman/internal/opstate"
)

// OperationRepo — реализация opstate.Manager поверх PostgreSQL.
//
// Переходы стадий выполняются одним условным UPDATE, поэтому
// конкурентные вызовы не могут нарушить владение operation.
type OperationRepo struct {
	pool  *pgxpool.Pool
	clock clock.Clock
}

// NewOperationRepo создаёт новый OperationRepo.
func NewOperationRepo(pool *pgxpool.Pool, c clock.Clock) *OperationRepo {
	if c == nil {
		c = clock.Real{}
	}
	return &OperationRepo{pool: pool, clock: c}
}

const stateColumns = `o.operation_id, o.stage, o.worker_id, o.requeues, o.last_lost_worker,
	o.exit_code, o.error, o.started_at, o.finished_at, o.updated_at, a.action_digest`

const infoColumns = `a.action_digest, a.command_digest, a.input_root_digest, a.priority,
	a.timeout_ms, a.platform_properties, a.load_ts, a.insert_ts`

// AddAction сохраняет action и operation в стадии QUEUED.
func (r *OperationRepo) AddAction(ctx context.Context, info *domain.ActionInfo) (domain.OperationID, error) {
	if err := info.Validate(); err != nil {
		return "", fmt.Errorf("validate action: %w", err)
	}

	now := r.clock.Now()
	if info.InsertTimestamp.IsZero() {
		info = info.Clone()
		info.InsertTimestamp = now
	}
	if info.LoadTimestamp.IsZero() {
		info = info.Clone()
		info.LoadTimestamp = now
	}

	props := info.PlatformProperties
	if props == nil {
		props = map[string]string{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("marshal platform properties: %w", err)
	}

	id := domain.NewOperationID()

	// Одним statement'ом, чтобы action без operation не появлялась.
	query := `
		WITH ins AS (
			INSERT INTO actions (operation_id, action_digest, command_digest, input_root_digest,
			                     priority, timeout_ms, platform_properties, load_ts, insert_ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING operation_id
		)
		INSERT INTO operations (operation_id, stage, updated_at)
		SELECT operation_id, $10, $11 FROM ins
	`
	_, err = r.pool.Exec(ctx, query,
		id,
		info.ActionDigest.String(),
		info.CommandDigest.String(),
		info.InputRootDigest.String(),
		info.Priority,
		info.Timeout.Milliseconds(),
		propsJSON,
		info.LoadTimestamp,
		info.InsertTimestamp,
		domain.StageQueued,
		now,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return "", fmt.Errorf("operation %s: %w", id, ErrAlreadyExists)
		}
		return "", fmt.Errorf("insert action: %w", err)
	}
	return id, nil
}

// FilterOperations открывает курсор по подходящим operations.
// Фильтр, порядок, OFFSET и LIMIT выполняются на стороне БД.
func (r *OperationRepo) FilterOperations(ctx context.Context, filter opstate.Filter) (opstate.Stream, error) {
	query, args := buildFilterQuery(filter)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter operations: %w", err)
	}
	return &rowStream{rows: rows}, nil
}

// AssignOperation переводит QUEUED → EXECUTING.
func (r *OperationRepo) AssignOperation(ctx context.Context, id domain.OperationID, workerID domain.WorkerID) error {
	now := r.clock.Now()

	result, err := r.pool.Exec(ctx, `
		UPDATE operations
		SET stage = $3, worker_id = $2, started_at = $4, finished_at = NULL, updated_at = $4
		WHERE operation_id = $1 AND stage = $5
	`, id, workerID, domain.StageExecuting, now, domain.StageQueued)
	if err != nil {
		return fmt.Errorf("assign operation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missingOr(ctx, id, fmt.Errorf("assign operation %s: %w", id, ErrInvalidState))
	}
	return nil
}

// UpdateOperation применяет обновление от владельца.
func (r *OperationRepo) UpdateOperation(ctx context.Context, id domain.OperationID, workerID domain.WorkerID, update domain.OperationUpdate) error {
	if err := update.Validate(); err != nil {
		return err
	}

	now := r.clock.Now()

	var (
		result pgconn.CommandTag
		err    error
	)
	if update.IsTerminal() {
		result, err = r.pool.Exec(ctx, `
			UPDATE operations
			SET stage = $3, worker_id = NULL, exit_code = $4, error = $5,
			    finished_at = $6, updated_at = $6
			WHERE operation_id = $1 AND worker_id = $2 AND stage = $7
		`, id, workerID, update.Stage(), update.ExitCode, nullString(update.Error), now, domain.StageExecuting)
	} else {
		result, err = r.pool.Exec(ctx, `
			UPDATE operations
			SET updated_at = $3
			WHERE operation_id = $1 AND worker_id = $2 AND stage = $4
		`, id, workerID, now, domain.StageExecuting)
	}
	if err != nil {
		return fmt.Errorf("update operation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.missingOr(ctx, id, fmt.Errorf("worker %s does not own operation %s: %w", workerID, id, domain.ErrOwnershipViolation))
	}
	return nil
}

// RequeueOperation возвращает operation потерянного worker'а в очередь
// или завершает её с ошибкой, если лимит requeue исчерпан.
func (r *OperationRepo) RequeueOperation(ctx context.Context, id domain.OperationID, lost domain.WorkerID, maxRequeues int) (*domain.ActionState, error) {
	now := r.clock.Now()
	failMsg := fmt.Sprintf("worker %s lost, requeue limit %d reached", lost, maxRequeues)

	query := `
		WITH upd AS (
			UPDATE operations
			SET stage            = CASE WHEN $3::int <= 0 OR requeues < $3::int THEN $4::text ELSE $5::text END,
			    requeues         = CASE WHEN $3::int <= 0 OR requeues < $3::int THEN requeues + 1 ELSE requeues END,
			    error            = CASE WHEN $3::int <= 0 OR requeues < $3::int THEN error ELSE $6::text END,
			    started_at       = CASE WHEN $3::int <= 0 OR requeues < $3::int THEN NULL ELSE started_at END,
			    finished_at      = CASE WHEN $3::int <= 0 OR requeues < $3::int THEN NULL ELSE $7::timestamptz END,
			    worker_id        = NULL,
			    last_lost_worker = $2,
			    updated_at       = $7::timestamptz
			WHERE operation_id = $1 AND worker_id = $2 AND stage = $8
			RETURNING *
		)
		SELECT ` + stateColumns + `
		FROM upd o
		JOIN actions a ON a.operation_id = o.operation_id
	`
	state, err := scanState(r.pool.QueryRow(ctx, query,
		id, lost, maxRequeues,
		domain.StageQueued, domain.StageCompletedFailure,
		failMsg, now, domain.StageExecuting,
	))
	if errors.Is(err, ErrNotFound) {
		return nil, r.missingOr(ctx, id, fmt.Errorf("worker %s does not own operation %s: %w", lost, id, domain.ErrOwnershipViolation))
	}
	if err != nil {
		return nil, fmt.Errorf("requeue operation: %w", err)
	}
	return state, nil
}

// missingOr возвращает ErrNotFound, если operation нет, иначе err.
func (r *OperationRepo) missingOr(ctx context.Context, id domain.OperationID, err error) error {
	var exists bool
	if qerr := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM operations WHERE operation_id = $1)`, id).Scan(&exists); qerr != nil {
		return fmt.Errorf("check operation: %w", qerr)
	}
	if !exists {
		return fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	return err
}

// buildFilterQuery строит SELECT для FilterOperations.
func buildFilterQuery(f opstate.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Stages != 0 && f.Stages != opstate.StageAny {
		stages := f.Stages.Stages()
		names := make([]string, len(stages))
		for i, s := range stages {
			names[i] = string(s)
		}
		args = append(args, names)
		conds = append(conds, fmt.Sprintf("o.stage = ANY($%d)", len(args)))
	}
	if f.OperationID != "" {
		args = append(args, string(f.OperationID))
		conds = append(conds, fmt.Sprintf("o.operation_id = $%d", len(args)))
	}
	if f.WorkerID != "" {
		args = append(args, string(f.WorkerID))
		conds = append(conds, fmt.Sprintf("o.worker_id = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(stateColumns)
	b.WriteString(", ")
	b.WriteString(infoColumns)
	b.WriteString(" FROM operations o JOIN actions a ON a.operation_id = o.operation_id")
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	if f.Order == opstate.OrderDispatch {
		b.WriteString(" ORDER BY a.priority DESC, a.insert_ts ASC, a.seq ASC")
	} else {
		b.WriteString(" ORDER BY a.seq ASC")
	}

	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET $%d", len(args))
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// --- Stream ---

// rowStream оборачивает pgx.Rows. Каждая строка несёт и ActionState,
// и ActionInfo, поэтому handles не обращаются к пулу повторно, пока
// курсор держит соединение. AsState отдаёт состояние на момент чтения строки.
type rowStream struct {
	rows pgx.Rows
	cur  *rowResult
	err  error
}

func (s *rowStream) Next(ctx context.Context) bool {
	if s.err != nil {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		s.rows.Close()
		return false
	}
	if !s.rows.Next() {
		return false
	}

	res, err := scanOperationRow(s.rows)
	if err != nil {
		s.err = err
		s.rows.Close()
		return false
	}
	s.cur = res
	return true
}

func (s *rowStream) Result() opstate.ActionStateResult {
	if s.cur == nil {
		return nil
	}
	return s.cur
}

func (s *rowStream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

func (s *rowStream) Close() {
	s.rows.Close()
}

type rowResult struct {
	state *domain.ActionState
	info  *domain.ActionInfo
}

func (r *rowResult) OperationID() domain.OperationID {
	return r.state.OperationID
}

func (r *rowResult) AsState(ctx context.Context) (*domain.ActionState, error) {
	state := *r.state
	return &state, nil
}

func (r *rowResult) AsActionInfo(ctx context.Context) (*domain.ActionInfo, error) {
	return r.info.Clone(), nil
}

// --- Helpers ---

// stateRow — приёмник колонок stateColumns.
type stateRow struct {
	state              domain.ActionState
	workerID, lastLost *string
	opError            *string
	actionD            string
}

func (r *stateRow) dest() []any {
	return []any{
		&r.state.OperationID,
		&r.state.Stage,
		&r.workerID,
		&r.state.Requeues,
		&r.lastLost,
		&r.state.ExitCode,
		&r.opError,
		&r.state.StartedAt,
		&r.state.FinishedAt,
		&r.state.UpdatedAt,
		&r.actionD,
	}
}

func (r *stateRow) result() (*domain.ActionState, error) {
	state := r.state
	if r.workerID != nil {
		state.WorkerID = domain.WorkerID(*r.workerID)
	}
	if r.lastLost != nil {
		state.LastLostWorker = domain.WorkerID(*r.lastLost)
	}
	if r.opError != nil {
		state.Error = *r.opError
	}

	var err error
	if state.ActionDigest, err = domain.ParseDigest(r.actionD); err != nil {
		return nil, err
	}
	return &state, nil
}

// infoRow — приёмник колонок infoColumns.
type infoRow struct {
	actionD, commandD, inputD string
	priority                  int32
	timeoutMS                 int64
	propsJSON                 []byte
	loadTS, insertTS          time.Time
}

func (r *infoRow) dest() []any {
	return []any{
		&r.actionD,
		&r.commandD,
		&r.inputD,
		&r.priority,
		&r.timeoutMS,
		&r.propsJSON,
		&r.loadTS,
		&r.insertTS,
	}
}

func (r *infoRow) result() (*domain.ActionInfo, error) {
	info := &domain.ActionInfo{
		Priority:        r.priority,
		Timeout:         time.Duration(r.timeoutMS) * time.Millisecond,
		LoadTimestamp:   r.loadTS,
		InsertTimestamp: r.insertTS,
	}

	var err error
	if info.ActionDigest, err = domain.ParseDigest(r.actionD); err != nil {
		return nil, err
	}
	if info.CommandDigest, err = domain.ParseDigest(r.commandD); err != nil {
		return nil, err
	}
	if info.InputRootDigest, err = domain.ParseDigest(r.inputD); err != nil {
		return nil, err
	}
	if len(r.propsJSON) > 0 {
		if err := json.Unmarshal(r.propsJSON, &info.PlatformProperties); err != nil {
			return nil, fmt.Errorf("unmarshal platform properties: %w", err)
		}
	}
	return info, nil
}

// scanOperationRow читает строку FilterOperations: stateColumns, затем infoColumns.
func scanOperationRow(rows pgx.Rows) (*rowResult, error) {
	var (
		sr stateRow
		ir infoRow
	)
	if err := rows.Scan(append(sr.dest(), ir.dest()...)...); err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}

	state, err := sr.result()
	if err != nil {
		return nil, err
	}
	info, err := ir.result()
	if err != nil {
		return nil, err
	}
	return &rowResult{state: state, info: info}, nil
}

func scanState(row pgx.Row) (*domain.ActionState, error) {
	var sr stateRow
	err := row.Scan(sr.dest()...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan operation: %w", err)
	}
	return sr.result()
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ opstate.Manager = (*OperationRepo)(nil)
