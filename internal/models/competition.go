package models

import "time"

// DateLayout is the wire and storage format of competition dates.
const DateLayout = "2006-01-02"

// Competition is an event parents can register students for.
type Competition struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Date            string    `db:"date" json:"date"`
	Location        string    `db:"location" json:"location"`
	Description     string    `db:"description" json:"description"`
	RegistrationFee float64   `db:"registration_fee" json:"registration_fee"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// CreateCompetitionRequest is the admin payload for a new competition.
type CreateCompetitionRequest struct {
	Name            string  `json:"name" validate:"required,min=3,max=200"`
	Date            string  `json:"date" validate:"required,datetime=2006-01-02"`
	Location        string  `json:"location" validate:"required,max=200"`
	Description     string  `json:"description" validate:"max=4000"`
	RegistrationFee float64 `json:"registration_fee" validate:"gte=0"`
}

// UpdateCompetitionRequest applies a partial update.
type UpdateCompetitionRequest struct {
	Name            *string  `json:"name" validate:"omitempty,min=3,max=200"`
	Date            *string  `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Location        *string  `json:"location" validate:"omitempty,max=200"`
	Description     *string  `json:"description" validate:"omitempty,max=4000"`
	RegistrationFee *float64 `json:"registration_fee" validate:"omitempty,gte=0"`
}

// TouchesLockedFields reports whether the update changes fields that are
// frozen once registrations exist.
func (r UpdateCompetitionRequest) TouchesLockedFields(current *Competition) bool {
	if r.Date != nil && *r.Date != current.Date {
		return true
	}
	if r.RegistrationFee != nil && *r.RegistrationFee != current.RegistrationFee {
		return true
	}
	return false
}
