package main

import (
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/handler"
	"github.com/noah-isme/mathcomp-api/internal/middleware"
	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/internal/repository"
	"github.com/noah-isme/mathcomp-api/internal/service"
	"github.com/noah-isme/mathcomp-api/pkg/config"
	"github.com/noah-isme/mathcomp-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/mathcomp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mathcomp-api/pkg/middleware/requestid"
)

type routerDeps struct {
	identity      *service.IdentityService
	competitions  *service.CompetitionService
	parents       *service.ParentService
	registrations *service.RegistrationService
	payments      *service.PaymentFlowService
	exports       *service.ExportService
	audit         *repository.AdminRepository
	metrics       *service.MetricsService
	readiness     map[string]handler.ReadinessCheck
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(deps.metrics.Handler(), deps.readiness)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.identity)
	profileHandler := handler.NewProfileHandler(deps.parents)
	competitionHandler := handler.NewCompetitionHandler(deps.competitions)
	registrationHandler := handler.NewRegistrationHandler(deps.registrations, deps.payments)
	paymentHandler := handler.NewPaymentHandler(deps.payments)
	exportHandler := handler.NewExportHandler(deps.exports)

	prefix := "/" + strings.Trim(cfg.APIPrefix, "/")
	api := r.Group(prefix)
	requireAuth := middleware.JWT(deps.identity)

	auth := api.Group("/auth")
	auth.POST("/google", authHandler.GoogleSignIn)
	auth.POST("/admin/login", authHandler.AdminLogin)
	auth.POST("/logout", requireAuth, authHandler.Logout)
	auth.GET("/me", requireAuth, authHandler.Me)

	api.GET("/competitions", requireAuth, competitionHandler.List)
	api.GET("/competitions/:id", requireAuth, competitionHandler.Get)
	api.GET("/exports/:token", middleware.Audit(deps.audit, models.AuditActionExportDownload, "export", logr), exportHandler.Download)

	parent := api.Group("", requireAuth, middleware.RequireRoles(models.RoleParent))
	parent.GET("/profile", profileHandler.Get)
	parent.PUT("/profile", profileHandler.Update)
	parent.GET("/profile/children", profileHandler.ListChildren)
	parent.POST("/profile/children", profileHandler.AddChild)
	parent.PUT("/profile/children/:childId", profileHandler.UpdateChild)
	parent.DELETE("/profile/children/:childId", profileHandler.DeleteChild)

	parent.POST("/registrations", registrationHandler.Create)
	parent.GET("/registrations", registrationHandler.ListMine)
	parent.GET("/registrations/:id", registrationHandler.Get)
	parent.PATCH("/registrations/:id", registrationHandler.Update)
	parent.POST("/registrations/:id/cancel", registrationHandler.Cancel)
	parent.POST("/registrations/:id/payments", paymentHandler.Initiate)

	parent.GET("/payments/:flowId", paymentHandler.Get)
	parent.DELETE("/payments/:flowId", paymentHandler.Close)
	parent.POST("/payments/:flowId/submit", paymentHandler.Submit)
	parent.POST("/payments/:flowId/retry", paymentHandler.Retry)
	parent.POST("/payments/:flowId/approve", paymentHandler.Approve)
	parent.POST("/payments/:flowId/cancel", paymentHandler.CancelOrder)
	parent.POST("/payments/:flowId/error", paymentHandler.FailOrder)

	admin := api.Group("/admin", requireAuth, middleware.RequireRoles(models.RoleAdmin))
	admin.POST("/competitions", competitionHandler.Create)
	admin.PUT("/competitions/:id", competitionHandler.Update)
	admin.DELETE("/competitions/:id", competitionHandler.Delete)
	admin.GET("/competitions/:id/registrations", registrationHandler.Roster)

	admin.GET("/registrations", registrationHandler.AdminList)
	admin.POST("/registrations/export", registrationHandler.Export)
	admin.GET("/registrations/:id", registrationHandler.AdminGet)
	admin.DELETE("/registrations/:id", registrationHandler.AdminDelete)
	admin.POST("/registrations/:id/toggle-paid", registrationHandler.TogglePaid)

	return r
}
