package migrations

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesSorted(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "0001_init.sql", names[0])
}

func TestMigrationFilesCarryGooseAnnotations(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	for _, name := range names {
		body, err := files.ReadFile(name)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(body), "-- +goose Up"), name)
		assert.Contains(t, string(body), "-- +goose Down", name)
	}
}

func TestApplyStopsOnCancelledContext(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran, err := Apply(ctx, sqlx.NewDb(db, "sqlmock"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migrations")
	assert.Empty(t, ran)
}
