// Package migrations embeds the SQL schema and applies it with goose.
package migrations

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
	"go.uber.org/zap"
)

//go:embed *.sql
var files embed.FS

var collectOnce sync.Once

// Names lists embedded migrations in the order they are applied.
func Names() ([]string, error) {
	collectOnce.Do(func() {
		goose.SetBaseFS(files)
		goose.SetLogger(goose.NopLogger())
	})
	migrations, err := goose.CollectMigrations(".", 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("collect migrations: %w", err)
	}
	names := make([]string, 0, len(migrations))
	for _, m := range migrations {
		names = append(names, filepath.Base(m.Source))
	}
	return names, nil
}

// Apply runs every pending migration under a Postgres advisory lock and
// returns the files applied by this call.
func Apply(ctx context.Context, db *sqlx.DB, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db.DB, files, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("init migrations: %w", err)
	}

	results, err := provider.Up(ctx)
	ran := make([]string, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil || res.Error != nil {
			continue
		}
		name := filepath.Base(res.Source.Path)
		logger.Info("migration applied",
			zap.String("version", name),
			zap.Duration("duration", res.Duration),
		)
		ran = append(ran, name)
	}
	if err != nil {
		return ran, fmt.Errorf("apply migrations: %w", err)
	}
	return ran, nil
}
