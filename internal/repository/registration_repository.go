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
	"github.com/lib/pq"

	"github.com/noah-isme/mathcomp-api/internal/models"
)

const registrationColumns = `id, parent_id, competition_id, competition_name, competition_fee, student_name, student_grade, student_school, student_age, parent_phone, emergency_contact, emergency_phone, special_needs, dietary_restrictions, paid, status, registration_date, payment_order_id, payment_details, payment_date, updated_at`

// RegistrationRepository provides database access for registrations.
type RegistrationRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewRegistrationRepository creates a new instance of RegistrationRepository.
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a registration in its initial pending/unpaid state.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	now := r.now()
	reg.RegistrationDate = now
	reg.UpdatedAt = now
	reg.Status = models.RegistrationPending
	reg.Paid = false
	reg.PaymentOrderID = nil
	reg.PaymentDetails = models.PaymentDetails{}
	reg.PaymentDate = nil

	const query = `INSERT INTO registrations (id, parent_id, competition_id, competition_name, competition_fee, student_name, student_grade, student_school, student_age, parent_phone, emergency_contact, emergency_phone, special_needs, dietary_restrictions, paid, status, registration_date, updated_at) VALUES (:id, :parent_id, :competition_id, :competition_name, :competition_fee, :student_name, :student_grade, :student_school, :student_age, :parent_phone, :emergency_contact, :emergency_phone, :special_needs, :dietary_restrictions, :paid, :status, :registration_date, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, reg); err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

// FindByID returns a registration by id.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	var reg models.Registration
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// ListByParent returns a parent's registrations, newest first.
func (r *RegistrationRepository) ListByParent(ctx context.Context, parentID string) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE parent_id = $1 ORDER BY registration_date DESC`
	regs := make([]models.Registration, 0)
	if err := r.db.SelectContext(ctx, &regs, query, parentID); err != nil {
		return nil, fmt.Errorf("list registrations by parent: %w", err)
	}
	return regs, nil
}

// ListByCompetition returns a competition's registrations, oldest first.
func (r *RegistrationRepository) ListByCompetition(ctx context.Context, competitionID string) ([]models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE competition_id = $1 ORDER BY registration_date ASC`
	regs := make([]models.Registration, 0)
	if err := r.db.SelectContext(ctx, &regs, query, competitionID); err != nil {
		return nil, fmt.Errorf("list registrations by competition: %w", err)
	}
	return regs, nil
}

// List returns registrations matching the admin filter with the total count.
// A PageSize below zero returns every match, which exports rely on.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	baseQuery := `FROM registrations WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.CompetitionID != "" {
		conditions = append(conditions, fmt.Sprintf("competition_id = $%d", len(args)+1))
		args = append(args, filter.CompetitionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Paid != nil {
		conditions = append(conditions, fmt.Sprintf("paid = $%d", len(args)+1))
		args = append(args, *filter.Paid)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(student_name) LIKE $%d OR LOWER(competition_name) LIKE $%d OR LOWER(COALESCE(student_school, '')) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY registration_date DESC", registrationColumns, baseQuery)
	if filter.PageSize >= 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		pageSize := filter.PageSize
		if pageSize == 0 || pageSize > 100 {
			pageSize = 20
		}
		listQuery += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
	}

	regs := make([]models.Registration, 0)
	if err := r.db.SelectContext(ctx, &regs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return regs, total, nil
}

// UpdateDetails merges only the non-nil fields of the patch.
func (r *RegistrationRepository) UpdateDetails(ctx context.Context, id string, patch models.UpdateRegistrationRequest) error {
	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.StudentName != nil {
		add("student_name", *patch.StudentName)
	}
	if patch.StudentGrade != nil {
		add("student_grade", *patch.StudentGrade)
	}
	if patch.StudentSchool != nil {
		add("student_school", *patch.StudentSchool)
	}
	if patch.StudentAge != nil {
		add("student_age", *patch.StudentAge)
	}
	if patch.ParentPhone != nil {
		add("parent_phone", *patch.ParentPhone)
	}
	if patch.EmergencyContact != nil {
		add("emergency_contact", *patch.EmergencyContact)
	}
	if patch.EmergencyPhone != nil {
		add("emergency_phone", *patch.EmergencyPhone)
	}
	if patch.SpecialNeeds != nil {
		add("special_needs", *patch.SpecialNeeds)
	}
	if patch.DietaryRestrictions != nil {
		add("dietary_restrictions", *patch.DietaryRestrictions)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", r.now())

	args = append(args, id, models.RegistrationCancelled)
	query := fmt.Sprintf("UPDATE registrations SET %s WHERE id = $%d AND status <> $%d", strings.Join(sets, ", "), len(args)-1, len(args))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}
	return requireRow(res)
}

// ApplyLifecycle writes the lifecycle columns only while the current status is
// one of from. It reports whether the row changed, so a concurrent transition
// that got there first leaves the caller with false and nothing written.
func (r *RegistrationRepository) ApplyLifecycle(ctx context.Context, id string, from []models.RegistrationStatus, lc models.Lifecycle) (bool, error) {
	args := []interface{}{lc.Status(), lc.Paid(), r.now()}
	sets := []string{"status = $1", "paid = $2", "updated_at = $3"}

	if date, write := lc.PaymentDate(); write {
		args = append(args, date)
		sets = append(sets, fmt.Sprintf("payment_date = $%d", len(args)))
	}
	if orderID := lc.OrderID(); orderID != nil {
		args = append(args, *orderID)
		sets = append(sets, fmt.Sprintf("payment_order_id = $%d", len(args)))
	}
	if details := lc.Details(); details != nil {
		args = append(args, models.NewPaymentDetails(details))
		sets = append(sets, fmt.Sprintf("payment_details = $%d", len(args)))
	}

	statuses := make([]string, len(from))
	for i, s := range from {
		statuses[i] = string(s)
	}
	args = append(args, id, pq.Array(statuses))
	query := fmt.Sprintf("UPDATE registrations SET %s WHERE id = $%d AND status = ANY($%d)", strings.Join(sets, ", "), len(args)-1, len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("apply registration lifecycle: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply registration lifecycle: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a registration.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	return requireRow(res)
}

// CountByCompetition returns how many registrations reference a competition.
func (r *RegistrationRepository) CountByCompetition(ctx context.Context, competitionID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM registrations WHERE competition_id = $1`, competitionID); err != nil {
		return 0, fmt.Errorf("count registrations by competition: %w", err)
	}
	return total, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
