package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/mathcomp-api/internal/models"
)

// ParentRepository provides database access for parent profiles and their children.
type ParentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewParentRepository creates a new instance of ParentRepository.
func NewParentRepository(db *sqlx.DB) *ParentRepository {
	return &ParentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// UpsertOnSignIn creates the profile on first sign-in and refreshes the
// provider-owned fields on every later one.
func (r *ParentRepository) UpsertOnSignIn(ctx context.Context, parent *models.Parent) (*models.Parent, error) {
	now := r.now()
	const query = `INSERT INTO parents (uid, email, display_name, photo_url, created_at, last_login_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (uid) DO UPDATE SET email = EXCLUDED.email, display_name = CASE WHEN parents.display_name = '' THEN EXCLUDED.display_name ELSE parents.display_name END, photo_url = EXCLUDED.photo_url, last_login_at = EXCLUDED.last_login_at
RETURNING uid, email, display_name, photo_url, phone, created_at, last_login_at, last_updated_at`
	var stored models.Parent
	if err := r.db.GetContext(ctx, &stored, query, parent.UID, parent.Email, parent.DisplayName, parent.PhotoURL, now); err != nil {
		return nil, fmt.Errorf("upsert parent: %w", err)
	}
	return &stored, nil
}

// FindByUID returns a parent profile.
func (r *ParentRepository) FindByUID(ctx context.Context, uid string) (*models.Parent, error) {
	const query = `SELECT uid, email, display_name, photo_url, phone, created_at, last_login_at, last_updated_at FROM parents WHERE uid = $1`
	var parent models.Parent
	if err := r.db.GetContext(ctx, &parent, query, uid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find parent: %w", err)
	}
	return &parent, nil
}

// UpdateProfile merges the given fields and stamps last_updated_at.
func (r *ParentRepository) UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) error {
	var sets []string
	var args []interface{}
	if req.DisplayName != nil {
		args = append(args, *req.DisplayName)
		sets = append(sets, fmt.Sprintf("display_name = $%d", len(args)))
	}
	if req.Phone != nil {
		args = append(args, *req.Phone)
		sets = append(sets, fmt.Sprintf("phone = $%d", len(args)))
	}
	args = append(args, r.now())
	sets = append(sets, fmt.Sprintf("last_updated_at = $%d", len(args)))
	args = append(args, uid)

	query := fmt.Sprintf("UPDATE parents SET %s WHERE uid = $%d", strings.Join(sets, ", "), len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update parent: %w", err)
	}
	return requireRow(res)
}

// ListChildren returns a parent's children, oldest first.
func (r *ParentRepository) ListChildren(ctx context.Context, parentID string) ([]models.Child, error) {
	const query = `SELECT id, parent_id, name, grade, age, created_at, updated_at FROM children WHERE parent_id = $1 ORDER BY created_at ASC`
	children := make([]models.Child, 0)
	if err := r.db.SelectContext(ctx, &children, query, parentID); err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}

// CreateChild inserts a child under its parent.
func (r *ParentRepository) CreateChild(ctx context.Context, child *models.Child) error {
	if child.ID == "" {
		child.ID = uuid.NewString()
	}
	now := r.now()
	child.CreatedAt, child.UpdatedAt = now, now
	const query = `INSERT INTO children (id, parent_id, name, grade, age, created_at, updated_at) VALUES (:id, :parent_id, :name, :grade, :age, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, child); err != nil {
		return fmt.Errorf("create child: %w", err)
	}
	return nil
}

// UpdateChild replaces a child's fields; the parent id scopes the write.
func (r *ParentRepository) UpdateChild(ctx context.Context, child *models.Child) error {
	child.UpdatedAt = r.now()
	const query = `UPDATE children SET name = :name, grade = :grade, age = :age, updated_at = :updated_at WHERE id = :id AND parent_id = :parent_id`
	res, err := r.db.NamedExecContext(ctx, query, child)
	if err != nil {
		return fmt.Errorf("update child: %w", err)
	}
	return requireRow(res)
}

// DeleteChild removes a child belonging to parentID.
func (r *ParentRepository) DeleteChild(ctx context.Context, parentID, childID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM children WHERE id = $1 AND parent_id = $2`, childID, parentID)
	if err != nil {
		return fmt.Errorf("delete child: %w", err)
	}
	return requireRow(res)
}
