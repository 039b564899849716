package models

import "time"

// Admin is an operator account stored in the admins table.
type Admin struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Parent is a guardian profile keyed by the identity provider's subject.
type Parent struct {
	UID           string     `db:"uid" json:"uid"`
	Email         string     `db:"email" json:"email"`
	DisplayName   string     `db:"display_name" json:"display_name"`
	PhotoURL      *string    `db:"photo_url" json:"photo_url,omitempty"`
	Phone         *string    `db:"phone" json:"phone,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	LastLoginAt   *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	LastUpdatedAt *time.Time `db:"last_updated_at" json:"last_updated_at,omitempty"`
}

// UpdateProfileRequest merges the given fields into the parent profile.
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,min=1,max=120"`
	Phone       *string `json:"phone" validate:"omitempty,us_phone"`
}

// Child is a student saved under a parent profile for quick registration.
type Child struct {
	ID        string    `db:"id" json:"id"`
	ParentID  string    `db:"parent_id" json:"parent_id"`
	Name      string    `db:"name" json:"name"`
	Grade     string    `db:"grade" json:"grade"`
	Age       *int      `db:"age" json:"age,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ChildRequest is used for both creating and replacing a child.
type ChildRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=120"`
	Grade string `json:"grade" validate:"required"`
	Age   *int   `json:"age" validate:"omitempty,min=5,max=18"`
}
