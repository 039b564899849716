package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mathcomp-api/internal/models"
	appErrors "github.com/noah-isme/mathcomp-api/pkg/errors"
	"github.com/noah-isme/mathcomp-api/pkg/middleware/requestid"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
	token  string
}

func (s *stubValidator) ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error) {
	s.token = token
	return s.claims, s.err
}

type recordingObserver struct {
	path   string
	status int
}

func (r *recordingObserver) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	r.path, r.status = path, status
}

type recordingAudit struct {
	logs []*models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/items/:id", handlers...)
	return r
}

func perform(r http.Handler, header string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/items/42", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRequiresBearerToken(t *testing.T) {
	validator := &stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleParent}}
	r := newRouter(JWT(validator))

	assert.Equal(t, http.StatusUnauthorized, perform(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, "Basic abc").Code)

	w := perform(r, "Bearer token-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "token-1", validator.token)
}

func TestJWTRejectsEndedSession(t *testing.T) {
	validator := &stubValidator{err: appErrors.Clone(appErrors.ErrUnauthorized, "session has ended")}
	r := newRouter(JWT(validator))

	w := perform(r, "Bearer token-1")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "session has ended")
}

func TestRequireRoles(t *testing.T) {
	parent := &stubValidator{claims: &models.JWTClaims{UserID: "u1", Role: models.RoleParent}}
	admin := &stubValidator{claims: &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}}

	assert.Equal(t, http.StatusForbidden, perform(newRouter(JWT(parent), RequireRoles(models.RoleAdmin)), "Bearer t").Code)
	assert.Equal(t, http.StatusOK, perform(newRouter(JWT(admin), RequireRoles(models.RoleAdmin)), "Bearer t").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(newRouter(RequireRoles(models.RoleAdmin)), "").Code)
}

func TestMetricsUsesRouteTemplate(t *testing.T) {
	observer := &recordingObserver{}
	r := newRouter(Metrics(observer))

	perform(r, "")
	assert.Equal(t, "/items/:id", observer.path)
	assert.Equal(t, http.StatusOK, observer.status)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	repo := &recordingAudit{}
	validator := &stubValidator{claims: &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}}
	r := newRouter(JWT(validator), Audit(repo, models.AuditActionExportDownload, "export", nil))

	perform(r, "Bearer t")
	require.Len(t, repo.logs, 1)
	assert.Equal(t, models.AuditActionExportDownload, repo.logs[0].Action)
	require.NotNil(t, repo.logs[0].UserID)
	assert.Equal(t, "a1", *repo.logs[0].UserID)

	perform(r, "")
	assert.Len(t, repo.logs, 1)
}

func TestResponseMetaCarriesRequestID(t *testing.T) {
	var meta map[string]interface{}
	r := newRouter(requestid.Middleware(), WithResponseMeta(), func(c *gin.Context) {
		SetMeta(c, "cached", true)
		meta = ExtractMeta(c)
	})

	w := perform(r, "")
	require.NotNil(t, meta)
	assert.Equal(t, w.Header().Get("X-Request-ID"), meta["request_id"])
	assert.Equal(t, true, meta["cached"])
}
