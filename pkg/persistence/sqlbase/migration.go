// Package sqlbase provides transaction and schema helpers shared by the SQL
// persistence implementations.
package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// migrationLockKey serialises concurrent migrators (API and workers starting
// together) through a transaction-level advisory lock.
const migrationLockKey = 7341190

// InTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func InTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// MigrationManager applies numbered schema migrations.
type MigrationManager struct {
	db         *sql.DB
	logger     *slog.Logger
	migrations map[int]string
}

func NewMigrationManager(logger *slog.Logger, db *sql.DB, migrations map[int]string) *MigrationManager {
	return &MigrationManager{
		db:         db,
		logger:     logger,
		migrations: migrations,
	}
}

// RunMigrations applies every migration newer than the recorded schema
// version. All pending migrations run in one transaction holding the
// migration lock, so a failed migration leaves the schema untouched.
func (m *MigrationManager) RunMigrations(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var applied []int

	err = InTx(ctx, m.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}

		var current int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
			return fmt.Errorf("failed to query current schema version: %w", err)
		}

		for _, version := range m.pending(current) {
			if _, err := tx.ExecContext(ctx, m.migrations[version]); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", version, err)
			}

			if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", version, err)
			}

			applied = append(applied, version)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "Database schema up to date", "applied", applied)

	return nil
}

func (m *MigrationManager) pending(current int) []int {
	versions := make([]int, 0, len(m.migrations))
	for version := range m.migrations {
		if version > current {
			versions = append(versions, version)
		}
	}

	sort.Ints(versions)

	return versions
}
