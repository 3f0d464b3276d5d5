package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/planbook/planbook/pkg/persistence"
	"github.com/planbook/planbook/pkg/persistence/file"
	"github.com/planbook/planbook/pkg/persistence/postgresql"
)

// NewPersistence builds a persistence layer from the database URL scheme:
// postgres:// URLs get PostgreSQL, everything else is treated as a file
// path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		persist, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return persist
	}

	return file.NewPersistence(databaseURL)
}
