package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
)

type parentRepository interface {
	FindByUID(ctx context.Context, uid string) (*models.Parent, error)
	UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) error
	ListChildren(ctx context.Context, parentID string) ([]models.Child, error)
	CreateChild(ctx context.Context, child *models.Child) error
	UpdateChild(ctx context.Context, child *models.Child) error
	DeleteChild(ctx context.Context, parentID, childID string) error
}

// ParentService manages parent profiles and their saved children.
type ParentService struct {
	repo      parentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewParentService constructs a ParentService.
func NewParentService(repo parentRepository, validate *validator.Validate, logger *zap.Logger) *ParentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerFormValidations(validate)
	return &ParentService{repo: repo, validator: validate, logger: logger}
}

// GetProfile returns the acting parent's profile.
func (s *ParentService) GetProfile(ctx context.Context, uid string) (*models.Parent, error) {
	parent, err := s.repo.FindByUID(ctx, uid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	return parent, nil
}

// UpdateProfile merges the given fields into the profile.
func (s *ParentService) UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.Parent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid profile payload")
	}
	if err := s.repo.UpdateProfile(ctx, uid, req); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to update profile")
	}
	return s.GetProfile(ctx, uid)
}

// ListChildren returns the parent's children, oldest first.
func (s *ParentService) ListChildren(ctx context.Context, uid string) ([]models.Child, error) {
	children, err := s.repo.ListChildren(ctx, uid)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list children")
	}
	return children, nil
}

// AddChild saves a child under the parent.
func (s *ParentService) AddChild(ctx context.Context, uid string, req models.ChildRequest) (*models.Child, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid child payload")
	}
	child := &models.Child{ParentID: uid, Name: req.Name, Grade: req.Grade, Age: req.Age}
	if err := s.repo.CreateChild(ctx, child); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to save child")
	}
	return child, nil
}

// UpdateChild replaces a child's fields. Children of other parents are reported as missing.
func (s *ParentService) UpdateChild(ctx context.Context, uid, childID string, req models.ChildRequest) (*models.Child, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid child payload")
	}
	child := &models.Child{ID: childID, ParentID: uid, Name: req.Name, Grade: req.Grade, Age: req.Age}
	if err := s.repo.UpdateChild(ctx, child); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "child not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to update child")
	}
	return child, nil
}

// DeleteChild removes one of the parent's children.
func (s *ParentService) DeleteChild(ctx context.Context, uid, childID string) error {
	if err := s.repo.DeleteChild(ctx, uid, childID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "child not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to delete child")
	}
	return nil
}
