package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
)

const (
	competitionCachePrefix  = "competitions:"
	competitionListCacheKey = competitionCachePrefix + "list"
)

func competitionCacheKey(id string) string {
	return competitionCachePrefix + "item:" + id
}

type competitionRepository interface {
	List(ctx context.Context) ([]models.Competition, error)
	FindByID(ctx context.Context, id string) (*models.Competition, error)
	Create(ctx context.Context, item *models.Competition) error
	Update(ctx context.Context, item *models.Competition) error
	Delete(ctx context.Context, id string) error
	Upsert(ctx context.Context, items []models.Competition) (int, error)
}

type competitionRegistrationCounter interface {
	CountByCompetition(ctx context.Context, competitionID string) (int, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// CompetitionService manages the competition directory.
type CompetitionService struct {
	repo          competitionRepository
	registrations competitionRegistrationCounter
	audit         auditRecorder
	cache         *CacheService
	cacheTTL      time.Duration
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewCompetitionService constructs the service. cache may be nil.
func NewCompetitionService(repo competitionRepository, registrations competitionRegistrationCounter, audit auditRecorder, cache *CacheService, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *CompetitionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompetitionService{
		repo:          repo,
		registrations: registrations,
		audit:         audit,
		cache:         cache,
		cacheTTL:      cacheTTL,
		validator:     validate,
		logger:        logger,
	}
}

// List returns every competition ordered by date.
func (s *CompetitionService) List(ctx context.Context) ([]models.Competition, error) {
	var cached []models.Competition
	if s.cache.Get(ctx, competitionListCacheKey, &cached) {
		return cached, nil
	}

	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list competitions")
	}
	if items == nil {
		items = []models.Competition{}
	}
	s.cache.Set(ctx, competitionListCacheKey, items, s.cacheTTL)
	return items, nil
}

// Get returns a competition by id.
func (s *CompetitionService) Get(ctx context.Context, id string) (*models.Competition, error) {
	var cached models.Competition
	if s.cache.Get(ctx, competitionCacheKey(id), &cached) {
		return &cached, nil
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competition")
	}
	s.cache.Set(ctx, competitionCacheKey(id), item, s.cacheTTL)
	return item, nil
}

// Create adds a competition.
func (s *CompetitionService) Create(ctx context.Context, actor models.Identity, req models.CreateCompetitionRequest) (*models.Competition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid competition payload")
	}
	item := &models.Competition{
		Name:            req.Name,
		Date:            req.Date,
		Location:        req.Location,
		Description:     req.Description,
		RegistrationFee: req.RegistrationFee,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to create competition")
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, models.AuditActionCompetitionCreate, item.ID, nil, item)
	return item, nil
}

// Update applies a partial update. Date and fee are frozen once any
// registration references the competition.
func (s *CompetitionService) Update(ctx context.Context, actor models.Identity, id string, req models.UpdateCompetitionRequest) (*models.Competition, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid competition payload")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.TouchesLockedFields(current) {
		count, err := s.registrations.CountByCompetition(ctx, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
		}
		if count > 0 {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "date and fee cannot change once students are registered")
		}
	}

	before := *current
	updated := *current
	if req.Name != nil {
		updated.Name = *req.Name
	}
	if req.Date != nil {
		updated.Date = *req.Date
	}
	if req.Location != nil {
		updated.Location = *req.Location
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.RegistrationFee != nil {
		updated.RegistrationFee = *req.RegistrationFee
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to update competition")
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, models.AuditActionCompetitionUpdate, id, &before, &updated)
	return &updated, nil
}

// Delete removes a competition nobody has registered for.
func (s *CompetitionService) Delete(ctx context.Context, actor models.Identity, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	count, err := s.registrations.CountByCompetition(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count registrations")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "competition has registrations and cannot be deleted")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "competition not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to delete competition")
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, models.AuditActionCompetitionDelete, id, current, nil)
	return nil
}

// Seed inserts sample competitions, skipping ones that already exist.
func (s *CompetitionService) Seed(ctx context.Context, items []models.CreateCompetitionRequest) (int, error) {
	rows := make([]models.Competition, 0, len(items))
	for _, req := range items {
		if err := s.validator.Struct(req); err != nil {
			return 0, validationError(err, "invalid seed competition "+req.Name)
		}
		rows = append(rows, models.Competition{
			Name:            req.Name,
			Date:            req.Date,
			Location:        req.Location,
			Description:     req.Description,
			RegistrationFee: req.RegistrationFee,
		})
	}
	inserted, err := s.repo.Upsert(ctx, rows)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to seed competitions")
	}
	if inserted > 0 {
		s.invalidate(ctx)
	}
	return inserted, nil
}

func (s *CompetitionService) invalidate(ctx context.Context) {
	s.cache.InvalidatePattern(ctx, competitionCachePrefix+"*")
}

func (s *CompetitionService) recordAudit(ctx context.Context, actor models.Identity, action, id string, before, after *models.Competition) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &actor.ID,
		Action:     action,
		Resource:   "competition",
		ResourceID: &id,
	}
	if before != nil {
		entry.OldValues, _ = json.Marshal(before)
	}
	if after != nil {
		entry.NewValues, _ = json.Marshal(after)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record competition audit log", zap.String("action", action), zap.Error(err))
	}
}
