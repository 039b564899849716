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

const competitionColumns = `id, name, to_char(date, 'YYYY-MM-DD') AS date, location, description, registration_fee, created_at, updated_at`

// CompetitionRepository provides database access for competitions.
type CompetitionRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewCompetitionRepository creates a new instance of CompetitionRepository.
func NewCompetitionRepository(db *sqlx.DB) *CompetitionRepository {
	return &CompetitionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// List returns every competition ordered by date ascending.
func (r *CompetitionRepository) List(ctx context.Context) ([]models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions ORDER BY date ASC, name ASC`
	items := make([]models.Competition, 0)
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("list competitions: %w", err)
	}
	return items, nil
}

// FindByID returns a competition by id.
func (r *CompetitionRepository) FindByID(ctx context.Context, id string) (*models.Competition, error) {
	query := `SELECT ` + competitionColumns + ` FROM competitions WHERE id = $1`
	var item models.Competition
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find competition: %w", err)
	}
	return &item, nil
}

// Create inserts a competition and stamps its timestamps.
func (r *CompetitionRepository) Create(ctx context.Context, item *models.Competition) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := r.now()
	item.CreatedAt = now
	item.UpdatedAt = now

	const query = `INSERT INTO competitions (id, name, date, location, description, registration_fee, created_at, updated_at) VALUES (:id, :name, CAST(:date AS DATE), :location, :description, :registration_fee, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("create competition: %w", err)
	}
	return nil
}

// Update writes every mutable field and stamps updated_at.
func (r *CompetitionRepository) Update(ctx context.Context, item *models.Competition) error {
	item.UpdatedAt = r.now()
	const query = `UPDATE competitions SET name = :name, date = CAST(:date AS DATE), location = :location, description = :description, registration_fee = :registration_fee, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update competition: %w", err)
	}
	return requireRow(res)
}

// Delete removes a competition.
func (r *CompetitionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM competitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete competition: %w", err)
	}
	return requireRow(res)
}

// Upsert inserts competitions, skipping names already scheduled on the same date.
// It returns how many rows were inserted.
func (r *CompetitionRepository) Upsert(ctx context.Context, items []models.Competition) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const exists = `SELECT COUNT(*) FROM competitions WHERE LOWER(name) = $1 AND date = CAST($2 AS DATE)`
	const insert = `INSERT INTO competitions (id, name, date, location, description, registration_fee, created_at, updated_at) VALUES (:id, :name, CAST(:date AS DATE), :location, :description, :registration_fee, :created_at, :updated_at)`

	inserted := 0
	now := r.now()
	for i := range items {
		item := items[i]
		var count int
		if err := tx.GetContext(ctx, &count, exists, strings.ToLower(item.Name), item.Date); err != nil {
			return 0, fmt.Errorf("check competition %q: %w", item.Name, err)
		}
		if count > 0 {
			continue
		}
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.CreatedAt, item.UpdatedAt = now, now
		if _, err := tx.NamedExecContext(ctx, insert, item); err != nil {
			return 0, fmt.Errorf("seed competition %q: %w", item.Name, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed: %w", err)
	}
	return inserted, nil
}
