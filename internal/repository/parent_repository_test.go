package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mathcomp-api/internal/models"
)

var parentColumnList = []string{"uid", "email", "display_name", "photo_url", "phone", "created_at", "last_login_at", "last_updated_at"}

func TestParentRepositoryUpsertOnSignIn(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParentRepository(db)
	repo.now = fixedNow

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO parents")).
		WithArgs("g-123", "pat@example.com", "Pat", nil, fixedNow()).
		WillReturnRows(sqlmock.NewRows(parentColumnList).
			AddRow("g-123", "pat@example.com", "Pat", nil, nil, fixedNow(), fixedNow(), nil))

	parent, err := repo.UpsertOnSignIn(context.Background(), &models.Parent{UID: "g-123", Email: "pat@example.com", DisplayName: "Pat"})
	require.NoError(t, err)
	assert.Equal(t, "g-123", parent.UID)
	require.NotNil(t, parent.LastLoginAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParentRepositoryUpdateProfileStampsTimestamp(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParentRepository(db)
	repo.now = fixedNow

	phone := "(555) 123-4567"
	mock.ExpectExec(regexp.QuoteMeta("UPDATE parents SET phone = $1, last_updated_at = $2 WHERE uid = $3")).
		WithArgs(phone, fixedNow(), "g-123").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateProfile(context.Background(), "g-123", models.UpdateProfileRequest{Phone: &phone}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestParentRepositoryListChildrenOrdered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM children WHERE parent_id = $1 ORDER BY created_at ASC")).
		WithArgs("g-123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "parent_id", "name", "grade", "age", "created_at", "updated_at"}).
			AddRow("k1", "g-123", "Ada", "5", 10, fixedNow(), fixedNow()))

	children, err := repo.ListChildren(context.Background(), "g-123")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Ada", children[0].Name)
}

func TestParentRepositoryDeleteChildScopedToParent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewParentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM children WHERE id = $1 AND parent_id = $2")).
		WithArgs("k1", "someone-else").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeleteChild(context.Background(), "someone-else", "k1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
