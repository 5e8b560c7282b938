package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/lib/pq"
)

const executionColumns = `
	id, workflow_id, version, project_id, session_id, user_id, chat_id,
	status, current_node_id, wait_type, wait_payload, wait_deadline, step_count,
	error, started_at, finished_at, updated_at, parent_execution_id, restarted_from_node_id`

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// Create inserts a new execution.
func (r *ExecutionRepository) Create(ctx context.Context, exec *models.Execution) error {
	payload, err := marshalNullable(exec.WaitPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal wait payload: %w", err)
	}

	query := `INSERT INTO executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = r.db.ExecContext(ctx, query,
		exec.ID,
		exec.WorkflowID,
		exec.Version,
		exec.ProjectID,
		exec.SessionID,
		exec.UserID,
		exec.ChatID,
		exec.Status,
		exec.CurrentNodeID,
		exec.WaitType,
		payload,
		exec.WaitDeadline,
		exec.StepCount,
		exec.Error,
		exec.StartedAt,
		exec.FinishedAt,
		exec.UpdatedAt,
		exec.ParentExecutionID,
		exec.RestartedFromNodeID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", persistence.ErrExecutionExists, exec.ID)
		}

		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// GetByID retrieves an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)

	exec, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ExecutionNotFound(id)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return exec, nil
}

// CompareAndSetStatus updates the status in a single conditional statement.
func (r *ExecutionRepository) CompareAndSetStatus(
	ctx context.Context,
	id string,
	next models.ExecutionStatus,
	expected ...models.ExecutionStatus,
) (*models.Execution, error) {
	now := time.Now().UTC()

	var finishedAt *time.Time
	if next.IsTerminal() {
		finishedAt = &now
	}

	query := `UPDATE executions
		SET status = $2, updated_at = $4, finished_at = COALESCE($5, finished_at)
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + executionColumns

	row := r.db.QueryRowContext(ctx, query, id, next, pq.Array(statusStrings(expected)), now, finishedAt)

	exec, err := scanExecution(row)
	if err == nil {
		return exec, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update execution status: %w", err)
	}

	var actual models.ExecutionStatus

	err = r.db.QueryRowContext(ctx, `SELECT status FROM executions WHERE id = $1`, id).Scan(&actual)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ExecutionNotFound(id)
		}

		return nil, fmt.Errorf("failed to read execution status: %w", err)
	}

	want := models.ExecutionStatus("")
	if len(expected) > 0 {
		want = expected[0]
	}

	return nil, &models.ConcurrencyConflictError{ExecutionID: id, Expected: want, Actual: actual}
}

// List returns one page of executions matching opts, newest first.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionPage, error) {
	opts = opts.Normalize()
	where, args := listConditions(opts)

	var total int

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM executions`+where, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count executions: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM executions%s ORDER BY started_at DESC, id LIMIT $%d OFFSET $%d`,
		executionColumns, where, len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset())...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	page := &persistence.ExecutionPage{Items: []*models.Execution{}, Total: total, Page: opts.Page, Limit: opts.Limit}

	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		page.Items = append(page.Items, exec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return page, nil
}

func listConditions(opts persistence.ListExecutionsOptions) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	add := func(format string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, len(args)))
	}

	if opts.WorkflowID != "" {
		add("workflow_id = $%d", opts.WorkflowID)
	}

	if len(opts.Statuses) > 0 {
		add("status = ANY($%d)", pq.Array(statusStrings(opts.Statuses)))
	}

	if opts.UserID != "" {
		add("user_id = $%d", opts.UserID)
	}

	if opts.SessionID != "" {
		add("session_id = $%d", opts.SessionID)
	}

	if opts.From != nil {
		add("started_at >= $%d", *opts.From)
	}

	if opts.To != nil {
		add("started_at <= $%d", *opts.To)
	}

	if opts.WaitDeadlineBefore != nil {
		add("wait_deadline IS NOT NULL AND wait_deadline <= $%d", *opts.WaitDeadlineBefore)
	}

	if opts.Search != "" {
		add(`(id ILIKE $%[1]d OR session_id ILIKE $%[1]d OR user_id ILIKE $%[1]d
			OR chat_id ILIKE $%[1]d OR current_node_id ILIKE $%[1]d OR error ILIKE $%[1]d)`,
			"%"+escapeLike(opts.Search)+"%")
	}

	if len(conditions) == 0 {
		return "", args
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

func updateExecution(ctx context.Context, db execer, exec *models.Execution) error {
	payload, err := marshalNullable(exec.WaitPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal wait payload: %w", err)
	}

	query := `
		UPDATE executions SET
			status = $2,
			current_node_id = $3,
			wait_type = $4,
			wait_payload = $5,
			wait_deadline = $6,
			step_count = $7,
			error = $8,
			finished_at = $9,
			updated_at = $10
		WHERE id = $1
	`

	_, err = db.ExecContext(ctx, query,
		exec.ID,
		exec.Status,
		exec.CurrentNodeID,
		exec.WaitType,
		payload,
		exec.WaitDeadline,
		exec.StepCount,
		exec.Error,
		exec.FinishedAt,
		exec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", exec.ID, err)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		exec       models.Execution
		payload    []byte
		deadline   sql.NullTime
		finishedAt sql.NullTime
	)

	err := row.Scan(
		&exec.ID,
		&exec.WorkflowID,
		&exec.Version,
		&exec.ProjectID,
		&exec.SessionID,
		&exec.UserID,
		&exec.ChatID,
		&exec.Status,
		&exec.CurrentNodeID,
		&exec.WaitType,
		&payload,
		&deadline,
		&exec.StepCount,
		&exec.Error,
		&exec.StartedAt,
		&finishedAt,
		&exec.UpdatedAt,
		&exec.ParentExecutionID,
		&exec.RestartedFromNodeID,
	)
	if err != nil {
		return nil, err
	}

	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &exec.WaitPayload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal wait payload: %w", err)
		}
	}

	if deadline.Valid {
		t := deadline.Time.UTC()
		exec.WaitDeadline = &t
	}

	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		exec.FinishedAt = &t
	}

	exec.StartedAt = exec.StartedAt.UTC()
	exec.UpdatedAt = exec.UpdatedAt.UTC()

	return &exec, nil
}

func statusStrings(statuses []models.ExecutionStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}

	return out
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// marshalNullable encodes v as JSON, mapping nil maps to SQL NULL.
func marshalNullable(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
