package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/pkg/export"
	"github.com/noah-isme/mathcomp-api/pkg/storage"
)

func ptrTime(t time.Time) *time.Time {
	return &t
}

func ptrString(s string) *string {
	return &s
}

func sampleRoster() []models.Registration {
	return []models.Registration{
		{
			ID:               "r1",
			ParentID:         "u1",
			CompetitionName:  "Spring Bowl",
			CompetitionFee:   25,
			StudentName:      "Ada",
			StudentGrade:     "5",
			StudentSchool:    ptrString("Lincoln Elementary"),
			Status:           models.RegistrationConfirmed,
			Paid:             true,
			RegistrationDate: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			PaymentDate:      ptrTime(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)),
		},
		{
			ID:               "r2",
			ParentID:         "u2",
			CompetitionName:  "Spring Bowl",
			CompetitionFee:   25,
			StudentName:      "Ben, Jr.",
			StudentGrade:     "6",
			Status:           models.RegistrationPending,
			RegistrationDate: time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC),
		},
	}
}

func newExportServiceForTest(t *testing.T) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	return NewExportService(store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), export.NewCSVExporter(), export.NewPDFExporter(nil))
}

func TestExportServiceGenerateCSV(t *testing.T) {
	svc := newExportServiceForTest(t)

	result, err := svc.Generate(context.Background(), "admin-1", models.ExportCSV, "", sampleRoster())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/exports/"))
	assert.True(t, strings.HasSuffix(result.FileName, ".csv"))

	token := strings.TrimPrefix(result.URL, "/api/v1/exports/")
	file, err := svc.Open(token, "admin-1")
	require.NoError(t, err)
	defer file.File.Close()
	assert.Equal(t, "text/csv", file.ContentType)

	body, err := io.ReadAll(file.File)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Student Name,Grade,School,Competition"))
	assert.Contains(t, lines[1], "Lincoln Elementary")
	assert.Contains(t, lines[1], "2026-03-02 09:30")
	assert.Contains(t, lines[2], `"Ben, Jr."`)
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc := newExportServiceForTest(t)

	result, err := svc.Generate(context.Background(), "admin-1", models.ExportPDF, "Spring Bowl roster", sampleRoster())
	require.NoError(t, err)

	token := strings.TrimPrefix(result.URL, "/api/v1/exports/")
	file, err := svc.Open(token, "")
	require.NoError(t, err)
	defer file.File.Close()
	assert.Equal(t, "application/pdf", file.ContentType)

	head := make([]byte, 4)
	_, err = io.ReadFull(file.File, head)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))
}

func TestExportServiceOpenRejectsOtherOwner(t *testing.T) {
	svc := newExportServiceForTest(t)
	result, err := svc.Generate(context.Background(), "admin-1", models.ExportCSV, "", sampleRoster())
	require.NoError(t, err)

	token := strings.TrimPrefix(result.URL, "/api/v1/exports/")
	_, err = svc.Open(token, "admin-2")
	assert.ErrorIs(t, err, storage.ErrInvalidToken)

	_, err = svc.Open(token+"x", "")
	assert.ErrorIs(t, err, storage.ErrInvalidToken)
}

func TestExportServiceRejectsUnknownFormat(t *testing.T) {
	svc := newExportServiceForTest(t)
	_, err := svc.Generate(context.Background(), "admin-1", models.ExportFormat("xlsx"), "", nil)
	assert.Error(t, err)
}
