// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/loyalflow/pkg/models"
	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	executions *ExecutionRepository
	logs       *LogRepository
	variables  *VariableRepository
	versions   *VersionRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:         database,
		logger:     logger,
		executions: &ExecutionRepository{db: database, logger: logger},
		logs:       &LogRepository{db: database, logger: logger},
		variables:  &VariableRepository{db: database, logger: logger},
		versions:   &VersionRepository{db: database, logger: logger},
	}, nil
}

func (p *Persistence) Executions() persistence.ExecutionRepository { return p.executions }

func (p *Persistence) Logs() persistence.LogRepository { return p.logs }

func (p *Persistence) Variables() persistence.VariableRepository { return p.variables }

func (p *Persistence) Versions() persistence.VersionRepository { return p.versions }

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Commit locks the execution row, checks its status and writes the cycle in
// one transaction.
func (p *Persistence) Commit(ctx context.Context, commit *persistence.Commit) error {
	exec := commit.Execution

	err := sqlbase.InTx(ctx, p.db, func(tx *sql.Tx) error {
		var current models.ExecutionStatus

		err := tx.QueryRowContext(ctx, `SELECT status FROM executions WHERE id = $1 FOR UPDATE`, exec.ID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ExecutionNotFound(exec.ID)
			}

			return fmt.Errorf("failed to lock execution %s: %w", exec.ID, err)
		}

		if current != commit.ExpectedStatus {
			return &models.ConcurrencyConflictError{ExecutionID: exec.ID, Expected: commit.ExpectedStatus, Actual: current}
		}

		for _, change := range commit.Variables {
			if err := applyVariable(ctx, tx, change); err != nil {
				return err
			}
		}

		for _, entry := range commit.Logs {
			if err := insertLog(ctx, tx, entry); err != nil {
				return err
			}
		}

		return updateExecution(ctx, tx, exec)
	})
	if err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "Committed execution cycle",
		"execution_id", exec.ID,
		"status", exec.Status,
		"logs", len(commit.Logs),
		"variables", len(commit.Variables))

	return nil
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
