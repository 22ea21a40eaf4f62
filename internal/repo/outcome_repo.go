package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/flow"
)

// Лимиты выборки ListRecent.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Outcome — запись журнала о завершённом flow.
type Outcome struct {
	ID         uuid.UUID       `json:"id"`
	RecordID   string          `json:"record_id"`
	Spec       string          `json:"spec"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	Attempts   int             `json:"attempts"`
	Steps      int             `json:"steps"`
	ElapsedMS  int64           `json:"elapsed_ms"`
	Results    []domain.Result `json:"results"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// NewOutcome собирает запись журнала из завершённого flow.
func NewOutcome(f *flow.TaskFlow) *Outcome {
	o := &Outcome{
		ID:         f.ID(),
		RecordID:   f.Record().ID(),
		Status:     f.Status().String(),
		Attempts:   f.Attempts(),
		Steps:      f.Steps(),
		ElapsedMS:  f.Elapsed().Milliseconds(),
		Results:    f.Results(),
		CreatedAt:  f.CreatedAt(),
		FinishedAt: f.FinishedAt(),
	}
	if spec := f.Spec(); spec != nil {
		o.Spec = spec.Name
	}
	if err := f.Err(); err != nil {
		o.Error = err.Error()
	}
	if o.FinishedAt.IsZero() {
		o.FinishedAt = time.Now().UTC()
	}
	return o
}

// OutcomeFilter — параметры выборки журнала.
type OutcomeFilter struct {
	Spec   string
	Status string
	Limit  int
	Offset int
}

// normalize приводит лимиты к допустимым значениям.
func (f OutcomeFilter) normalize() OutcomeFilter {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// OutcomeRepo — журнал завершённых flows в PostgreSQL.
//
// Журнал только пополняется: flows из него не восстанавливаются.
type OutcomeRepo struct {
	pool *pgxpool.Pool
}

// NewOutcomeRepo создаёт новый OutcomeRepo.
func NewOutcomeRepo(pool *pgxpool.Pool) *OutcomeRepo {
	return &OutcomeRepo{pool: pool}
}

const outcomeSchema = `
	CREATE TABLE IF NOT EXISTS flow_outcomes (
		id          UUID PRIMARY KEY,
		record_id   TEXT NOT NULL,
		spec        TEXT NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT,
		attempts    INT NOT NULL,
		steps       INT NOT NULL,
		elapsed_ms  BIGINT NOT NULL,
		results     JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS flow_outcomes_finished_at_idx ON flow_outcomes (finished_at DESC);
	CREATE INDEX IF NOT EXISTS flow_outcomes_spec_idx ON flow_outcomes (spec);
`

// EnsureSchema создаёт таблицу журнала, если её нет.
func (r *OutcomeRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, outcomeSchema); err != nil {
		return fmt.Errorf("ensure outcome schema: %w", err)
	}
	return nil
}

// Save записывает итог. Повторная запись того же flow игнорируется.
func (r *OutcomeRepo) Save(ctx context.Context, o *Outcome) error {
	resultsJSON, err := json.Marshal(o.Results)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	query := `
		INSERT INTO flow_outcomes (id, record_id, spec, status, error, attempts, steps,
		                           elapsed_ms, results, created_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.pool.Exec(ctx, query,
		o.ID,
		o.RecordID,
		o.Spec,
		o.Status,
		nullString(o.Error),
		o.Attempts,
		o.Steps,
		o.ElapsedMS,
		resultsJSON,
		o.CreatedAt,
		o.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Finished реализует worker.Sink.
func (r *OutcomeRepo) Finished(ctx context.Context, f *flow.TaskFlow) error {
	return r.Save(ctx, NewOutcome(f))
}

// GetByID возвращает запись по ID flow.
func (r *OutcomeRepo) GetByID(ctx context.Context, id uuid.UUID) (*Outcome, error) {
	query := `
		SELECT id, record_id, spec, status, error, attempts, steps,
		       elapsed_ms, results, created_at, finished_at
		FROM flow_outcomes
		WHERE id = $1
	`
	o, err := scanOutcome(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// ListRecent возвращает последние записи, новые первыми.
func (r *OutcomeRepo) ListRecent(ctx context.Context, filter OutcomeFilter) ([]Outcome, error) {
	filter = filter.normalize()

	query := `
		SELECT id, record_id, spec, status, error, attempts, steps,
		       elapsed_ms, results, created_at, finished_at
		FROM flow_outcomes
		WHERE ($1::text IS NULL OR spec = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY finished_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(filter.Spec),
		nullString(filter.Status),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, rows.Err()
}

// scanOutcome сканирует строку в Outcome.
// pgx.ErrNoRows возвращается без обёртки.
func scanOutcome(row pgx.Row) (*Outcome, error) {
	var o Outcome
	var outcomeErr *string
	var resultsJSON []byte

	err := row.Scan(
		&o.ID,
		&o.RecordID,
		&o.Spec,
		&o.Status,
		&outcomeErr,
		&o.Attempts,
		&o.Steps,
		&o.ElapsedMS,
		&resultsJSON,
		&o.CreatedAt,
		&o.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan outcome: %w", err)
	}

	if outcomeErr != nil {
		o.Error = *outcomeErr
	}
	if resultsJSON != nil {
		if err := json.Unmarshal(resultsJSON, &o.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return &o, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
