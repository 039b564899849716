package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mathcomp-api/internal/middleware"
	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/internal/service"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
	"github.com/noah-isme/mathcomp-api/pkg/storage"
)

var parentClaims = &models.JWTClaims{UserID: "u1", Role: models.RoleParent}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type paymentServiceMock struct {
	flow      *models.PaymentFlow
	err       error
	actor     models.Identity
	orderID   string
	initiated models.InitiatePaymentRequest
}

func (m *paymentServiceMock) RedirectPath() string { return "/my-registrations" }

func (m *paymentServiceMock) Initiate(ctx context.Context, actor models.Identity, registrationID string, req models.InitiatePaymentRequest) (*models.PaymentFlow, error) {
	m.actor, m.initiated = actor, req
	return m.flow, m.err
}

func (m *paymentServiceMock) Get(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error) {
	return m.flow, m.err
}

func (m *paymentServiceMock) SubmitPayment(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error) {
	return m.flow, m.err
}

func (m *paymentServiceMock) Retry(ctx context.Context, actor models.Identity, flowID string) (*models.PaymentFlow, error) {
	return m.flow, m.err
}

func (m *paymentServiceMock) Close(ctx context.Context, actor models.Identity, flowID string) error {
	return m.err
}

func (m *paymentServiceMock) Approve(ctx context.Context, actor models.Identity, flowID, orderID string) (*models.PaymentFlow, error) {
	m.orderID = orderID
	return m.flow, m.err
}

func (m *paymentServiceMock) CancelOrder(ctx context.Context, actor models.Identity, flowID, orderID string) (*models.PaymentFlow, error) {
	m.orderID = orderID
	return m.flow, m.err
}

func (m *paymentServiceMock) FailOrder(ctx context.Context, actor models.Identity, flowID string, req models.GatewayCallbackRequest) (*models.PaymentFlow, error) {
	m.orderID = req.OrderID
	return m.flow, m.err
}

func TestPaymentHandlerInitiate(t *testing.T) {
	svc := &paymentServiceMock{flow: &models.PaymentFlow{ID: "f1", State: models.FlowAwaitingGateway}}
	h := NewPaymentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/registrations/r1/payments", []byte(`{"mode":"simulated"}`))
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Set(middleware.ContextUserKey, parentClaims)

	h.Initiate(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "u1", svc.actor.ID)
	assert.Equal(t, models.PaymentModeSimulated, svc.initiated.Mode)
}

func TestPaymentHandlerInitiateAlreadyPaidRedirects(t *testing.T) {
	svc := &paymentServiceMock{err: appErrors.Clone(appErrors.ErrAlreadyPaid, "")}
	h := NewPaymentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/registrations/r1/payments", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Set(middleware.ContextUserKey, parentClaims)

	h.Initiate(c)
	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "ALREADY_PAID", env.Error.Code)
	assert.Equal(t, "/my-registrations", env.Meta["redirect"])
}

func TestPaymentHandlerSubmitIsAccepted(t *testing.T) {
	svc := &paymentServiceMock{flow: &models.PaymentFlow{ID: "f1", State: models.FlowProcessing}}
	h := NewPaymentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/payments/f1/submit", nil)
	c.Params = gin.Params{{Key: "flowId", Value: "f1"}}
	c.Set(middleware.ContextUserKey, parentClaims)

	h.Submit(c)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestPaymentHandlerInitiateSurfacesValidation(t *testing.T) {
	svc := &paymentServiceMock{err: appErrors.Clone(appErrors.ErrValidation, "invalid payment payload: mode (oneof)")}
	h := NewPaymentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/registrations/r1/payments", []byte(`{"mode":"sandbox"}`))
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Set(middleware.ContextUserKey, parentClaims)

	h.Initiate(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, models.PaymentMode("sandbox"), svc.initiated.Mode)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Nil(t, env.Meta["redirect"])
}

func TestPaymentHandlerCallbackForwardsOrder(t *testing.T) {
	svc := &paymentServiceMock{flow: &models.PaymentFlow{ID: "f1"}}
	h := NewPaymentHandler(svc)

	c, w := newGinContext(http.MethodPost, "/payments/f1/error", []byte(`{"order_id":"O-1","detail":"popup closed"}`))
	c.Params = gin.Params{{Key: "flowId", Value: "f1"}}
	c.Set(middleware.ContextUserKey, parentClaims)
	h.FailOrder(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "O-1", svc.orderID)
}

func TestPaymentHandlerRequiresSignIn(t *testing.T) {
	h := NewPaymentHandler(&paymentServiceMock{})
	c, w := newGinContext(http.MethodGet, "/payments/f1", nil)
	h.Get(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

type registrationServiceMock struct {
	filter models.RegistrationFilter
	export models.ExportRequest
}

func (m *registrationServiceMock) Register(ctx context.Context, actor models.Identity, req models.CreateRegistrationRequest) (*models.Registration, error) {
	return &models.Registration{ID: "r1", ParentID: actor.ID, Status: models.RegistrationPending}, nil
}

func (m *registrationServiceMock) ListMine(ctx context.Context, actor models.Identity) ([]models.Registration, error) {
	return nil, nil
}

func (m *registrationServiceMock) Get(ctx context.Context, actor models.Identity, id string) (*models.Registration, error) {
	return &models.Registration{ID: id}, nil
}

func (m *registrationServiceMock) UpdateDetails(ctx context.Context, actor models.Identity, id string, patch models.UpdateRegistrationRequest) (*models.Registration, error) {
	return nil, appErrors.Clone(appErrors.ErrRegistrationCancelled, "")
}

func (m *registrationServiceMock) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	m.filter = filter
	return []models.Registration{{ID: "r1"}}, 41, nil
}

func (m *registrationServiceMock) ListByCompetition(ctx context.Context, competitionID string) ([]models.Registration, error) {
	return nil, nil
}

func (m *registrationServiceMock) Delete(ctx context.Context, actor models.Identity, id string) error {
	return nil
}

func (m *registrationServiceMock) Export(ctx context.Context, actor models.Identity, req models.ExportRequest) (*models.ExportResult, error) {
	m.export = req
	return &models.ExportResult{URL: "/api/v1/exports/t"}, nil
}

type lifecycleMock struct {
	cancelled string
}

func (m *lifecycleMock) CancelRegistration(ctx context.Context, actor models.Identity, registrationID string) (*models.Registration, error) {
	m.cancelled = registrationID
	return &models.Registration{ID: registrationID, Status: models.RegistrationCancelled}, nil
}

func (m *lifecycleMock) TogglePaid(ctx context.Context, actor models.Identity, registrationID string) (*models.Registration, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	return &models.Registration{ID: registrationID, Paid: true, Status: models.RegistrationConfirmed}, nil
}

func TestRegistrationHandlerCreate(t *testing.T) {
	h := NewRegistrationHandler(&registrationServiceMock{}, &lifecycleMock{})
	body := []byte(`{"competition_id":"8a6f2c1e-4b7d-4e2a-9c3f-1d2e3f4a5b6c","student_name":"Ada","student_grade":"5"}`)

	c, w := newGinContext(http.MethodPost, "/registrations", body)
	c.Set(middleware.ContextUserKey, parentClaims)
	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestRegistrationHandlerUpdateCancelled(t *testing.T) {
	h := NewRegistrationHandler(&registrationServiceMock{}, &lifecycleMock{})

	c, w := newGinContext(http.MethodPatch, "/registrations/r1", []byte(`{"student_name":"Ada King"}`))
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Set(middleware.ContextUserKey, parentClaims)
	h.Update(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "REGISTRATION_CANCELLED", decode(t, w).Error.Code)
}

func TestRegistrationHandlerCancel(t *testing.T) {
	lifecycle := &lifecycleMock{}
	h := NewRegistrationHandler(&registrationServiceMock{}, lifecycle)

	c, w := newGinContext(http.MethodPost, "/registrations/r1/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	c.Set(middleware.ContextUserKey, parentClaims)
	h.Cancel(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "r1", lifecycle.cancelled)
}

func TestRegistrationHandlerAdminListParsesFilter(t *testing.T) {
	svc := &registrationServiceMock{}
	h := NewRegistrationHandler(svc, &lifecycleMock{})

	c, w := newGinContext(http.MethodGet, "/admin/registrations?status=pending&paid=false&search=ada&page=3&page_size=10", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	h.AdminList(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RegistrationPending, svc.filter.Status)
	require.NotNil(t, svc.filter.Paid)
	assert.False(t, *svc.filter.Paid)
	assert.Equal(t, "ada", svc.filter.Search)
	assert.Equal(t, 3, svc.filter.Page)
	assert.Contains(t, w.Body.String(), `"total_count":41`)

	c, w = newGinContext(http.MethodGet, "/admin/registrations?paid=maybe", nil)
	h.AdminList(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationHandlerExportDefaultsToCSV(t *testing.T) {
	svc := &registrationServiceMock{}
	h := NewRegistrationHandler(svc, &lifecycleMock{})

	c, w := newGinContext(http.MethodPost, "/admin/registrations/export?competition_id=c1", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	h.Export(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ExportCSV, svc.export.Format)
	assert.Equal(t, "c1", svc.export.Filter.CompetitionID)
}

type exportOpenerStub struct {
	path string
	err  error
}

func (s *exportOpenerStub) Open(token, ownerID string) (*service.ExportFile, error) {
	if s.err != nil {
		return nil, s.err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	return &service.ExportFile{File: f, Name: filepath.Base(s.path), ContentType: "text/csv"}, nil
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrations.csv")
	require.NoError(t, os.WriteFile(path, []byte("Student Name\nAda\n"), 0o600))
	h := NewExportHandler(&exportOpenerStub{path: path})

	c, w := newGinContext(http.MethodGet, "/exports/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "registrations.csv")
	assert.Equal(t, "Student Name\nAda\n", w.Body.String())
}

func TestExportHandlerExpiredLink(t *testing.T) {
	h := NewExportHandler(&exportOpenerStub{err: storage.ErrTokenExpired})
	c, w := newGinContext(http.MethodGet, "/exports/token", nil)
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)

	h = NewExportHandler(&exportOpenerStub{err: storage.ErrInvalidToken})
	c, w = newGinContext(http.MethodGet, "/exports/token", nil)
	h.Download(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type identityServiceMock struct {
	signedOut *models.JWTClaims
}

func (m *identityServiceMock) SignInWithGoogle(ctx context.Context, req models.GoogleSignInRequest) (*models.AuthResponse, error) {
	if req.IDToken == "bad" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid Google credential")
	}
	return &models.AuthResponse{AccessToken: "jwt", User: models.Identity{ID: "u1", Role: models.RoleParent}}, nil
}

func (m *identityServiceMock) SignInAdmin(ctx context.Context, req models.AdminLoginRequest) (*models.AuthResponse, error) {
	return nil, appErrors.ErrInvalidCredentials
}

func (m *identityServiceMock) SignOut(ctx context.Context, claims *models.JWTClaims, ip, userAgent string) error {
	m.signedOut = claims
	return nil
}

func TestAuthHandlerGoogleSignIn(t *testing.T) {
	h := NewAuthHandler(&identityServiceMock{})

	c, w := newGinContext(http.MethodPost, "/auth/google", []byte(`{"id_token":"good"}`))
	h.GoogleSignIn(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"jwt"`)

	c, w = newGinContext(http.MethodPost, "/auth/google", []byte(`{"id_token":"bad"}`))
	h.GoogleSignIn(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/admin/login", []byte(`{"email":"a@example.com","password":"x"}`))
	h.AdminLogin(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandlerLogout(t *testing.T) {
	svc := &identityServiceMock{}
	h := NewAuthHandler(svc)

	c, w := newGinContext(http.MethodPost, "/auth/logout", nil)
	h.Logout(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/auth/logout", nil)
	c.Set(middleware.ContextUserKey, parentClaims)
	h.Logout(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, parentClaims, svc.signedOut)
}
