package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
	"github.com/noah-isme/mathcomp-api/pkg/events"
)

type registrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	ListByParent(ctx context.Context, parentID string) ([]models.Registration, error)
	ListByCompetition(ctx context.Context, competitionID string) ([]models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
	UpdateDetails(ctx context.Context, id string, patch models.UpdateRegistrationRequest) error
	Delete(ctx context.Context, id string) error
}

type competitionFinder interface {
	FindByID(ctx context.Context, id string) (*models.Competition, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, evt events.Event)
}

type rosterExporter interface {
	Generate(ctx context.Context, ownerID string, format models.ExportFormat, title string, regs []models.Registration) (*models.ExportResult, error)
}

// RegistrationService serves the parent and admin registration surfaces.
// Lifecycle transitions live in PaymentFlowService.
type RegistrationService struct {
	repo         registrationRepository
	competitions competitionFinder
	audit        auditRecorder
	exporter     rosterExporter
	events       eventEmitter
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(repo registrationRepository, competitions competitionFinder, audit auditRecorder, exporter rosterExporter, emitter eventEmitter, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerFormValidations(validate)
	return &RegistrationService{
		repo:         repo,
		competitions: competitions,
		audit:        audit,
		exporter:     exporter,
		events:       emitter,
		validator:    validate,
		logger:       logger,
	}
}

// Register creates a pending registration for the acting parent, capturing
// the competition's name and fee as they are now.
func (s *RegistrationService) Register(ctx context.Context, actor models.Identity, req models.CreateRegistrationRequest) (*models.Registration, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid registration payload")
	}

	competition, err := s.competitions.FindByID(ctx, req.CompetitionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competition")
	}

	form := req.RegistrationForm
	reg := &models.Registration{
		ParentID:            actor.ID,
		CompetitionID:       competition.ID,
		CompetitionName:     competition.Name,
		CompetitionFee:      competition.RegistrationFee,
		StudentName:         form.StudentName,
		StudentGrade:        form.StudentGrade,
		StudentSchool:       form.StudentSchool,
		StudentAge:          form.StudentAge,
		ParentPhone:         form.ParentPhone,
		EmergencyContact:    form.EmergencyContact,
		EmergencyPhone:      form.EmergencyPhone,
		SpecialNeeds:        form.SpecialNeeds,
		DietaryRestrictions: form.DietaryRestrictions,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to save registration")
	}

	s.emit(ctx, events.New(events.RegistrationCreated, reg.ID, actor.ID, map[string]any{
		"competition_id": reg.CompetitionID,
		"fee":            reg.CompetitionFee,
	}))
	return reg, nil
}

// ListMine returns the acting parent's registrations, newest first.
func (s *RegistrationService) ListMine(ctx context.Context, actor models.Identity) ([]models.Registration, error) {
	regs, err := s.repo.ListByParent(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return regs, nil
}

// Get returns a registration. Parents may only read their own.
func (s *RegistrationService) Get(ctx context.Context, actor models.Identity, id string) (*models.Registration, error) {
	reg, err := loadRegistration(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleAdmin && reg.ParentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "you do not have access to this registration")
	}
	return reg, nil
}

// UpdateDetails merges student and guardian fields into the acting parent's
// registration. Cancelled registrations are read-only.
func (s *RegistrationService) UpdateDetails(ctx context.Context, actor models.Identity, id string, patch models.UpdateRegistrationRequest) (*models.Registration, error) {
	if err := s.validator.Struct(patch); err != nil {
		return nil, validationError(err, "invalid registration payload")
	}
	reg, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if reg.Status == models.RegistrationCancelled {
		return nil, appErrors.Clone(appErrors.ErrRegistrationCancelled, "cancelled registrations cannot be edited")
	}
	if patch.Empty() {
		return reg, nil
	}
	if err := s.repo.UpdateDetails(ctx, id, patch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Gone or cancelled since the read above.
			if _, lookupErr := loadRegistration(ctx, s.repo, id); lookupErr != nil {
				return nil, lookupErr
			}
			return nil, appErrors.Clone(appErrors.ErrRegistrationCancelled, "cancelled registrations cannot be edited")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to update registration")
	}
	return loadRegistration(ctx, s.repo, id)
}

// List returns a page of registrations for the admin table.
func (s *RegistrationService) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	if filter.Status != "" && !validStatus(filter.Status) {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "unknown registration status")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize == 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}
	regs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return regs, total, nil
}

// ListByCompetition returns a competition's roster, earliest registration first.
func (s *RegistrationService) ListByCompetition(ctx context.Context, competitionID string) ([]models.Registration, error) {
	if _, err := s.competitions.FindByID(ctx, competitionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "competition not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load competition")
	}
	regs, err := s.repo.ListByCompetition(ctx, competitionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list registrations")
	}
	return regs, nil
}

// Delete removes a registration through the admin surface.
func (s *RegistrationService) Delete(ctx context.Context, actor models.Identity, id string) error {
	reg, err := loadRegistration(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return appErrors.Wrap(err, appErrors.ErrStoreWriteFailed.Code, appErrors.ErrStoreWriteFailed.Status, "failed to delete registration")
	}

	old, _ := json.Marshal(reg)
	s.recordAudit(ctx, actor, models.AuditActionRegistrationDel, id, old, nil)
	s.emit(ctx, events.New(events.RegistrationDeleted, id, actor.ID, map[string]any{
		"paid":   reg.Paid,
		"status": reg.Status,
	}))
	return nil
}

// Export renders every registration matching the filter and returns a signed
// download link.
func (s *RegistrationService) Export(ctx context.Context, actor models.Identity, req models.ExportRequest) (*models.ExportResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid export request")
	}
	if s.exporter == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "exports are not configured")
	}

	filter := req.Filter
	filter.Page, filter.PageSize = 1, -1
	regs, _, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registrations")
	}

	title := "Competition Registrations"
	if filter.CompetitionID != "" && len(regs) > 0 {
		title = regs[0].CompetitionName + " Registrations"
	}
	result, err := s.exporter.Generate(ctx, actor.ID, req.Format, title, regs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export registrations")
	}

	values, _ := json.Marshal(map[string]any{"format": req.Format, "rows": result.Rows, "file": result.FileName})
	s.recordAudit(ctx, actor, models.AuditActionExport, "", nil, values)
	return result, nil
}

func (s *RegistrationService) emit(ctx context.Context, evt events.Event) {
	if s.events != nil {
		s.events.Emit(ctx, evt)
	}
}

func (s *RegistrationService) recordAudit(ctx context.Context, actor models.Identity, action, id string, old, updated []byte) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:    &actor.ID,
		Action:    action,
		Resource:  "registration",
		OldValues: old,
		NewValues: updated,
	}
	if id != "" {
		entry.ResourceID = &id
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record registration audit log", zap.String("action", action), zap.Error(err))
	}
}

type registrationFinder interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
}

func loadRegistration(ctx context.Context, repo registrationFinder, id string) (*models.Registration, error) {
	reg, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return reg, nil
}

func validStatus(status models.RegistrationStatus) bool {
	switch status {
	case models.RegistrationPending, models.RegistrationConfirmed, models.RegistrationCancelled:
		return true
	}
	return false
}
