package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/models"
)

// logDetails holds the structured parts of a log entry stored in one JSONB column.
type logDetails struct {
	Data            map[string]any      `json:"data,omitempty"`
	InputData       map[string]any      `json:"input_data,omitempty"`
	OutputData      map[string]any      `json:"output_data,omitempty"`
	VariablesBefore map[string]any      `json:"variables_before,omitempty"`
	VariablesAfter  map[string]any      `json:"variables_after,omitempty"`
	HTTPRequest     *models.HTTPCapture `json:"http_request,omitempty"`
	HTTPResponse    *models.HTTPCapture `json:"http_response,omitempty"`
}

// LogRepository reads the append-only execution log.
type LogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// ListByExecution returns the log entries of an execution ordered by step.
func (r *LogRepository) ListByExecution(ctx context.Context, executionID string) ([]*models.LogEntry, error) {
	query := `
		SELECT id, execution_id, step, node_id, node_type, workflow_id, depth,
			   timestamp, level, message, error, duration_ms, details
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY step, timestamp, id
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	entries := []*models.LogEntry{}

	for rows.Next() {
		var (
			entry    models.LogEntry
			duration sql.NullInt64
			details  []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.Step,
			&entry.NodeID,
			&entry.NodeType,
			&entry.WorkflowID,
			&entry.Depth,
			&entry.Timestamp,
			&entry.Level,
			&entry.Message,
			&entry.Error,
			&duration,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		if duration.Valid {
			entry.DurationMs = &duration.Int64
		}

		if len(details) > 0 {
			var d logDetails
			if err := json.Unmarshal(details, &d); err != nil {
				return nil, fmt.Errorf("failed to unmarshal log details: %w", err)
			}

			entry.Data = d.Data
			entry.InputData = d.InputData
			entry.OutputData = d.OutputData
			entry.VariablesBefore = d.VariablesBefore
			entry.VariablesAfter = d.VariablesAfter
			entry.HTTPRequest = d.HTTPRequest
			entry.HTTPResponse = d.HTTPResponse
		}

		entry.Timestamp = entry.Timestamp.UTC()
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return entries, nil
}

func insertLog(ctx context.Context, db execer, entry *models.LogEntry) error {
	details, err := json.Marshal(logDetails{
		Data:            entry.Data,
		InputData:       entry.InputData,
		OutputData:      entry.OutputData,
		VariablesBefore: entry.VariablesBefore,
		VariablesAfter:  entry.VariablesAfter,
		HTTPRequest:     entry.HTTPRequest,
		HTTPResponse:    entry.HTTPResponse,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal log details: %w", err)
	}

	query := `
		INSERT INTO execution_logs (
			id, execution_id, step, node_id, node_type, workflow_id, depth,
			timestamp, level, message, error, duration_ms, details
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = db.ExecContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		entry.Step,
		entry.NodeID,
		entry.NodeType,
		entry.WorkflowID,
		entry.Depth,
		entry.Timestamp,
		entry.Level,
		entry.Message,
		entry.Error,
		entry.DurationMs,
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to insert log entry %s: %w", entry.ID, err)
	}

	return nil
}
