package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// RegistrationStatus represents the lifecycle of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// PaymentDetails is the gateway's payload stored verbatim in a JSONB column.
type PaymentDetails struct {
	types.NullJSONText
}

// NewPaymentDetails wraps a raw gateway payload. Empty input yields SQL NULL.
func NewPaymentDetails(raw json.RawMessage) PaymentDetails {
	if len(raw) == 0 {
		return PaymentDetails{}
	}
	return PaymentDetails{types.NullJSONText{JSONText: types.JSONText(raw), Valid: true}}
}

// Raw returns the stored payload, or nil when absent.
func (p PaymentDetails) Raw() json.RawMessage {
	if !p.Valid {
		return nil
	}
	return json.RawMessage(p.JSONText)
}

// MarshalJSON emits the stored payload as-is.
func (p PaymentDetails) MarshalJSON() ([]byte, error) {
	if !p.Valid || len(p.JSONText) == 0 {
		return []byte("null"), nil
	}
	return []byte(p.JSONText), nil
}

// Registration is a student's application to a competition, owned by a parent.
type Registration struct {
	ID                  string             `db:"id" json:"id"`
	ParentID            string             `db:"parent_id" json:"parent_id"`
	CompetitionID       string             `db:"competition_id" json:"competition_id"`
	CompetitionName     string             `db:"competition_name" json:"competition_name"`
	CompetitionFee      float64            `db:"competition_fee" json:"competition_fee"`
	StudentName         string             `db:"student_name" json:"student_name"`
	StudentGrade        string             `db:"student_grade" json:"student_grade"`
	StudentSchool       *string            `db:"student_school" json:"student_school,omitempty"`
	StudentAge          *int               `db:"student_age" json:"student_age,omitempty"`
	ParentPhone         *string            `db:"parent_phone" json:"parent_phone,omitempty"`
	EmergencyContact    *string            `db:"emergency_contact" json:"emergency_contact,omitempty"`
	EmergencyPhone      *string            `db:"emergency_phone" json:"emergency_phone,omitempty"`
	SpecialNeeds        *string            `db:"special_needs" json:"special_needs,omitempty"`
	DietaryRestrictions *string            `db:"dietary_restrictions" json:"dietary_restrictions,omitempty"`
	Paid                bool               `db:"paid" json:"paid"`
	Status              RegistrationStatus `db:"status" json:"status"`
	RegistrationDate    time.Time          `db:"registration_date" json:"registration_date"`
	PaymentOrderID      *string            `db:"payment_order_id" json:"payment_order_id,omitempty"`
	PaymentDetails      PaymentDetails     `db:"payment_details" json:"payment_details,omitempty"`
	PaymentDate         *time.Time         `db:"payment_date" json:"payment_date,omitempty"`
	UpdatedAt           time.Time          `db:"updated_at" json:"updated_at"`
}

// Lifecycle returns the combined status/paid state as stored.
func (r *Registration) Lifecycle() LifecycleState {
	return LifecycleState{Status: r.Status, Paid: r.Paid}
}

// RegistrationForm is what a parent submits to register a student.
type RegistrationForm struct {
	StudentName         string  `json:"student_name" validate:"required,min=2,max=120"`
	StudentGrade        string  `json:"student_grade" validate:"required"`
	StudentSchool       *string `json:"student_school" validate:"omitempty,max=200"`
	StudentAge          *int    `json:"student_age" validate:"omitempty,min=5,max=18"`
	ParentPhone         *string `json:"parent_phone" validate:"omitempty,us_phone"`
	EmergencyContact    *string `json:"emergency_contact" validate:"omitempty,max=120"`
	EmergencyPhone      *string `json:"emergency_phone" validate:"omitempty,us_phone"`
	SpecialNeeds        *string `json:"special_needs" validate:"omitempty,max=1000"`
	DietaryRestrictions *string `json:"dietary_restrictions" validate:"omitempty,max=1000"`
}

// CreateRegistrationRequest binds a form to the competition it targets.
type CreateRegistrationRequest struct {
	CompetitionID string `json:"competition_id" validate:"required,uuid"`
	RegistrationForm
}

// UpdateRegistrationRequest merges only the given student and guardian fields.
type UpdateRegistrationRequest struct {
	StudentName         *string `json:"student_name" validate:"omitempty,min=2,max=120"`
	StudentGrade        *string `json:"student_grade" validate:"omitempty,min=1"`
	StudentSchool       *string `json:"student_school" validate:"omitempty,max=200"`
	StudentAge          *int    `json:"student_age" validate:"omitempty,min=5,max=18"`
	ParentPhone         *string `json:"parent_phone" validate:"omitempty,us_phone"`
	EmergencyContact    *string `json:"emergency_contact" validate:"omitempty,max=120"`
	EmergencyPhone      *string `json:"emergency_phone" validate:"omitempty,us_phone"`
	SpecialNeeds        *string `json:"special_needs" validate:"omitempty,max=1000"`
	DietaryRestrictions *string `json:"dietary_restrictions" validate:"omitempty,max=1000"`
}

// Empty reports whether the patch changes nothing.
func (r UpdateRegistrationRequest) Empty() bool {
	return r.StudentName == nil && r.StudentGrade == nil && r.StudentSchool == nil &&
		r.StudentAge == nil && r.ParentPhone == nil && r.EmergencyContact == nil &&
		r.EmergencyPhone == nil && r.SpecialNeeds == nil && r.DietaryRestrictions == nil
}

// RegistrationFilter narrows the admin registrations table.
type RegistrationFilter struct {
	CompetitionID string
	Status        RegistrationStatus
	Paid          *bool
	Search        string
	Page          int
	PageSize      int
}

// ExportFormat names a supported roster export.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportRequest selects the rows and format of a registrations export.
type ExportRequest struct {
	Format ExportFormat       `json:"format" validate:"required,oneof=csv pdf"`
	Filter RegistrationFilter `json:"-"`
}

// ExportResult points at a stored export through a signed download URL.
type ExportResult struct {
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	Rows      int       `json:"rows"`
	ExpiresAt time.Time `json:"expires_at"`
}
