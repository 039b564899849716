package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleParent UserRole = "PARENT"
	RoleAdmin  UserRole = "ADMIN"
)

// GoogleSignInRequest carries the ID token obtained by the SPA from Google.
type GoogleSignInRequest struct {
	IDToken   string `json:"id_token" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AdminLoginRequest holds credentials for authenticating an administrator.
type AdminLoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// AuthResponse returns the issued access token and the signed-in identity.
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        Identity  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Identity describes the signed-in user.
type Identity struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	PhotoURL    string   `json:"photo_url,omitempty"`
	Role        UserRole `json:"role"`
	SessionID   string   `json:"-"`
}

// JWTClaims represents the JWT payload for access tokens. The registered ID
// claim carries the session id.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Role        UserRole `json:"role"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	jwt.RegisteredClaims
}

// Identity projects the claims onto the identity they were issued for.
func (c *JWTClaims) Identity() Identity {
	return Identity{
		ID:          c.UserID,
		Email:       c.Email,
		DisplayName: c.DisplayName,
		Role:        c.Role,
		SessionID:   c.ID,
	}
}

// Session is the server-side record behind an access token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      UserRole  `json:"role"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IdentityEventType names a change in who is signed in.
type IdentityEventType string

const (
	IdentitySignedIn  IdentityEventType = "signed_in"
	IdentitySignedOut IdentityEventType = "signed_out"
)

// IdentityEvent is delivered to identity listeners.
type IdentityEvent struct {
	Type     IdentityEventType
	Identity Identity
	At       time.Time
}
