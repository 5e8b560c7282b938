// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/loyalflow/pkg/persistence"
	"github.com/dukex/loyalflow/pkg/persistence/file"
	"github.com/dukex/loyalflow/pkg/persistence/postgresql"
)

// NewPersistence selects the storage by the scheme of databaseURL:
// postgres:// and postgresql:// use PostgreSQL, anything else is a file path.
//
//nolint:ireturn // the implementation is selected at runtime
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		logger.InfoContext(ctx, "Using file persistence", "path", databaseURL)

		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "file"
	}
}
