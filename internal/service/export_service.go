package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/pkg/export"
	"github.com/noah-isme/mathcomp-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type datasetRenderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportFile is a stored export resolved from a download token.
type ExportFile struct {
	File        *os.File
	Name        string
	ContentType string
}

// ExportService renders registration rosters and hands out signed links to them.
type ExportService struct {
	storage   fileStorage
	renderers map[models.ExportFormat]datasetRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the CSV and PDF exporters.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv, pdf datasetRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter(nil)
	}
	return &ExportService{
		storage: store,
		renderers: map[models.ExportFormat]datasetRenderer{
			models.ExportCSV: csv,
			models.ExportPDF: pdf,
		},
		signer: signer,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Generate renders regs in format, stores the file and signs a download link
// bound to ownerID.
func (s *ExportService) Generate(ctx context.Context, ownerID string, format models.ExportFormat, title string, regs []models.Registration) (*models.ExportResult, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload, err := renderer.Render(rosterDataset(title, regs))
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", format, err)
	}

	filename := fmt.Sprintf("registrations_%s.%s", s.now().UTC().Format("20060102_150405"), renderer.Extension())
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(ownerID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.logger.Info("registrations exported",
		zap.String("format", string(format)),
		zap.Int("rows", len(regs)),
		zap.String("file", relPath),
	)
	return &models.ExportResult{
		FileName:  relPath,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		Rows:      len(regs),
		ExpiresAt: expiresAt,
	}, nil
}

// Open resolves a download token. A non-empty ownerID must match the owner
// the token was issued to.
func (s *ExportService) Open(token, ownerID string) (*ExportFile, error) {
	owner, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	if ownerID != "" && owner != ownerID {
		return nil, storage.ErrInvalidToken
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, err
	}
	contentType := "application/octet-stream"
	for _, r := range s.renderers {
		if strings.EqualFold(filepath.Ext(relPath), "."+r.Extension()) {
			contentType = r.ContentType()
		}
	}
	return &ExportFile{File: file, Name: filepath.Base(relPath), ContentType: contentType}, nil
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

var rosterColumns = []export.Column{
	{Key: "student_name", Title: "Student Name", Width: 34},
	{Key: "student_grade", Title: "Grade", Width: 14},
	{Key: "student_school", Title: "School", Width: 34},
	{Key: "competition_name", Title: "Competition", Width: 40},
	{Key: "parent_id", Title: "Parent", Width: 30},
	{Key: "parent_phone", Title: "Parent Phone", Width: 28},
	{Key: "status", Title: "Status", Width: 20},
	{Key: "paid", Title: "Paid", Width: 12},
	{Key: "fee", Title: "Fee", Width: 16},
	{Key: "registration_date", Title: "Registered", Width: 24},
	{Key: "payment_date", Title: "Paid On", Width: 24},
}

func rosterDataset(title string, regs []models.Registration) export.Dataset {
	if title == "" {
		title = "Competition Registrations"
	}
	rows := make([]map[string]string, 0, len(regs))
	for _, r := range regs {
		rows = append(rows, map[string]string{
			"student_name":      r.StudentName,
			"student_grade":     r.StudentGrade,
			"student_school":    deref(r.StudentSchool),
			"competition_name":  r.CompetitionName,
			"parent_id":         r.ParentID,
			"parent_phone":      deref(r.ParentPhone),
			"status":            string(r.Status),
			"paid":              strconv.FormatBool(r.Paid),
			"fee":               strconv.FormatFloat(r.CompetitionFee, 'f', 2, 64),
			"registration_date": formatReportTime(&r.RegistrationDate),
			"payment_date":      formatReportTime(r.PaymentDate),
		})
	}
	return export.Dataset{Title: title, Columns: rosterColumns, Rows: rows}
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func formatReportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
