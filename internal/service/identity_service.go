package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/api/idtoken"

	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/internal/repository"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
)

// GoogleProfile is the subset of a verified Google ID token we rely on.
type GoogleProfile struct {
	Subject  string
	Email    string
	Name     string
	Picture  string
	Verified bool
}

// GoogleTokenVerifier checks a Google ID token and returns its profile.
type GoogleTokenVerifier interface {
	Verify(ctx context.Context, token string) (*GoogleProfile, error)
}

type googleVerifier struct {
	audience string
}

// NewGoogleVerifier validates ID tokens issued for the given OAuth client id.
func NewGoogleVerifier(audience string) GoogleTokenVerifier {
	return &googleVerifier{audience: audience}
}

func (v *googleVerifier) Verify(ctx context.Context, token string) (*GoogleProfile, error) {
	payload, err := idtoken.Validate(ctx, token, v.audience)
	if err != nil {
		return nil, err
	}
	profile := &GoogleProfile{Subject: payload.Subject}
	if s, ok := payload.Claims["email"].(string); ok {
		profile.Email = s
	}
	if s, ok := payload.Claims["name"].(string); ok {
		profile.Name = s
	}
	if s, ok := payload.Claims["picture"].(string); ok {
		profile.Picture = s
	}
	if b, ok := payload.Claims["email_verified"].(bool); ok {
		profile.Verified = b
	}
	return profile, nil
}

type identityParentRepository interface {
	UpsertOnSignIn(ctx context.Context, parent *models.Parent) (*models.Parent, error)
}

type identityAdminRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionStore interface {
	Save(ctx context.Context, session models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

// IdentityConfig defines token issuing parameters.
type IdentityConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// IdentityListener is notified when a user signs in or out.
type IdentityListener func(models.IdentityEvent)

type identitySubscription struct {
	id       uint64
	listener IdentityListener
}

// IdentityService signs parents in with Google, admins with a password, and
// keeps the session behind every access token.
type IdentityService struct {
	parents   identityParentRepository
	admins    identityAdminRepository
	sessions  sessionStore
	google    GoogleTokenVerifier
	validator *validator.Validate
	logger    *zap.Logger
	config    IdentityConfig
	now       func() time.Time

	mu        sync.Mutex
	nextSubID uint64
	listeners []identitySubscription
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(parents identityParentRepository, admins identityAdminRepository, sessions sessionStore, google GoogleTokenVerifier, validate *validator.Validate, logger *zap.Logger, config IdentityConfig) *IdentityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Expiry <= 0 {
		config.Expiry = 24 * time.Hour
	}
	return &IdentityService{
		parents:   parents,
		admins:    admins,
		sessions:  sessions,
		google:    google,
		validator: validate,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// SignInWithGoogle exchanges a Google ID token for an access token and
// refreshes the parent's profile.
func (s *IdentityService) SignInWithGoogle(ctx context.Context, req models.GoogleSignInRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid sign-in payload")
	}
	if s.google == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "google sign-in is not configured")
	}

	profile, err := s.google.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid google id token")
	}
	if profile.Subject == "" || profile.Email == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "google account has no email")
	}

	now := s.now().UTC()
	parent := &models.Parent{
		UID:         profile.Subject,
		Email:       profile.Email,
		DisplayName: profile.Name,
		CreatedAt:   now,
		LastLoginAt: &now,
	}
	if profile.Picture != "" {
		parent.PhotoURL = &profile.Picture
	}
	stored, err := s.parents.UpsertOnSignIn(ctx, parent)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save parent profile")
	}

	identity := models.Identity{
		ID:          stored.UID,
		Email:       stored.Email,
		DisplayName: stored.DisplayName,
		Role:        models.RoleParent,
	}
	if stored.PhotoURL != nil {
		identity.PhotoURL = *stored.PhotoURL
	}
	return s.openSession(ctx, identity, req.IP, req.UserAgent)
}

// SignInAdmin authenticates an administrator by email and password.
func (s *IdentityService) SignInAdmin(ctx context.Context, req models.AdminLoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid login payload")
	}

	admin, err := s.admins.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch admin")
	}
	if !admin.Active {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "account is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	resp, err := s.openSession(ctx, models.Identity{
		ID:          admin.ID,
		Email:       admin.Email,
		DisplayName: admin.FullName,
		Role:        models.RoleAdmin,
	}, req.IP, req.UserAgent)
	if err != nil {
		return nil, err
	}

	if err := s.admins.UpdateLastLogin(ctx, admin.ID, s.now().UTC()); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}
	s.audit(ctx, admin.ID, models.AuditActionLogin, `{"status":"success"}`, req.IP, req.UserAgent)
	return resp, nil
}

// SignOut ends the session behind claims. Signing out twice is not an error.
func (s *IdentityService) SignOut(ctx context.Context, claims *models.JWTClaims, ip, userAgent string) error {
	if claims == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "missing token claims")
	}
	if err := s.sessions.Delete(ctx, claims.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	if claims.Role == models.RoleAdmin {
		s.audit(ctx, claims.UserID, models.AuditActionLogout, `{"status":"logout"}`, ip, userAgent)
	}
	s.notify(models.IdentityEvent{Type: models.IdentitySignedOut, Identity: claims.Identity(), At: s.now().UTC()})
	return nil
}

// ValidateToken parses an access token and checks that its session is open.
func (s *IdentityService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	session, err := s.sessions.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session has ended")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.UserID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session does not match token")
	}
	return claims, nil
}

// Subscribe registers a listener for sign-in and sign-out events. Listeners
// run synchronously in registration order. The returned func unsubscribes.
func (s *IdentityService) Subscribe(listener IdentityListener) func() {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.listeners = append(s.listeners, identitySubscription{id: id, listener: listener})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.listeners {
				if sub.id == id {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *IdentityService) notify(event models.IdentityEvent) {
	s.mu.Lock()
	subs := make([]identitySubscription, len(s.listeners))
	copy(subs, s.listeners)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.listener(event)
	}
}

func (s *IdentityService) openSession(ctx context.Context, identity models.Identity, ip, userAgent string) (*models.AuthResponse, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.Expiry)
	identity.SessionID = uuid.NewString()

	if err := s.sessions.Save(ctx, models.Session{
		ID:        identity.SessionID,
		UserID:    identity.ID,
		Role:      identity.Role,
		IPAddress: ip,
		UserAgent: userAgent,
		CreatedAt: issuedAt,
		ExpiresAt: expiresAt,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open session")
	}

	claims := &models.JWTClaims{
		UserID:      identity.ID,
		Role:        identity.Role,
		Email:       identity.Email,
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        identity.SessionID,
			Issuer:    s.config.Issuer,
			Subject:   identity.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	s.notify(models.IdentityEvent{Type: models.IdentitySignedIn, Identity: identity, At: issuedAt})

	return &models.AuthResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.config.Expiry.Seconds()),
		User:        identity,
		IssuedAt:    issuedAt,
	}, nil
}

func (s *IdentityService) audit(ctx context.Context, userID, action, values, ip, userAgent string) {
	if err := s.admins.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(values),
		IPAddress:  ip,
		UserAgent:  userAgent,
	}); err != nil {
		s.logger.Warn("failed to record auth audit log", zap.String("action", action), zap.Error(err))
	}
}
