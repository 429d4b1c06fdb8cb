package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cflux/flow/pkg/persistence"
	"github.com/cflux/flow/pkg/persistence/file"
	"github.com/cflux/flow/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by databaseURL: postgres:// or
// postgresql:// for PostgreSQL, file://<dir> or a bare path for JSON files.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, location := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return p, nil
	case "file":
		p, err := file.NewPersistence(location)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q", provider)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, location, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, location
}
