package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/mathcomp-api/api/swagger"
	"github.com/noah-isme/mathcomp-api/internal/gateway"
	"github.com/noah-isme/mathcomp-api/internal/handler"
	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/internal/repository"
	"github.com/noah-isme/mathcomp-api/internal/service"
	"github.com/noah-isme/mathcomp-api/pkg/cache"
	"github.com/noah-isme/mathcomp-api/pkg/config"
	"github.com/noah-isme/mathcomp-api/pkg/database"
	"github.com/noah-isme/mathcomp-api/pkg/events"
	"github.com/noah-isme/mathcomp-api/pkg/export"
	"github.com/noah-isme/mathcomp-api/pkg/logger"
	"github.com/noah-isme/mathcomp-api/pkg/storage"
)

// @title Math Competition Registration API
// @version 1.0.0
// @description Competition directory, student registration and payment.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching and shared sessions disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	registrationRepo := repository.NewRegistrationRepository(db)
	competitionRepo := repository.NewCompetitionRepository(db)
	parentRepo := repository.NewParentRepository(db)
	adminRepo := repository.NewAdminRepository(db)
	sessionRepo := repository.NewSessionRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Competitions.CacheTTL, logr, redisClient != nil)

	publisher, err := newPublisher(cfg.Events, logr)
	if err != nil {
		return err
	}
	dispatcher := events.NewDispatcher(publisher, events.DispatcherConfig{
		Workers:    cfg.Events.Workers,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
	}, logr)
	// Runs past the shutdown signal; stopped once payment flows settle.
	dispatcher.Start(context.WithoutCancel(ctx))
	defer dispatcher.Stop()

	if cfg.Google.ClientID == "" {
		logr.Warn("GOOGLE_CLIENT_ID is empty, Google tokens are accepted for any audience")
	}
	identitySvc := service.NewIdentityService(parentRepo, adminRepo, sessionRepo, service.NewGoogleVerifier(cfg.Google.ClientID), validate, logr, service.IdentityConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	competitionSvc := service.NewCompetitionService(competitionRepo, registrationRepo, adminRepo, cacheSvc, cfg.Competitions.CacheTTL, validate, logr)
	parentSvc := service.NewParentService(parentRepo, validate, logr)

	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(exportStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, export.NewCSVExporter(), export.NewPDFExporter(nil))
	registrationSvc := service.NewRegistrationService(registrationRepo, competitionRepo, adminRepo, exportSvc, dispatcher, validate, logr)

	adapter, err := newGateway(cfg.Payments, logr)
	if err != nil {
		return err
	}
	paymentSvc := service.NewPaymentFlowService(registrationRepo, adapter, identitySvc, adminRepo, dispatcher, metrics, validate, service.PaymentFlowConfig{
		DefaultMode:   models.PaymentMode(cfg.Payments.Mode),
		Currency:      cfg.Payments.Currency,
		RedirectDelay: cfg.Payments.RedirectDelay,
		RedirectPath:  cfg.Payments.RedirectPath,
		OnRedirect: func(flow models.PaymentFlow) {
			logr.Debug("payment flow finished", zap.String("flow_id", flow.ID), zap.String("registration_id", flow.RegistrationID))
		},
	}, logr)

	go sweepExports(ctx, exportSvc, cfg.Exports.SignedURLTTL, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, logr, routerDeps{
		identity:      identitySvc,
		competitions:  competitionSvc,
		parents:       parentSvc,
		registrations: registrationSvc,
		payments:      paymentSvc,
		exports:       exportSvc,
		audit:         adminRepo,
		metrics:       metrics,
		readiness:     readinessChecks(db, redisClient),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("payment_mode", cfg.Payments.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if err := paymentSvc.Shutdown(shutdownCtx); err != nil {
		logr.Warn("payment flows did not settle before shutdown", zap.Error(err))
	}
	dispatcher.Stop()
	return nil
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"database": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}

func newPublisher(cfg config.EventsConfig, logr *zap.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, nil
	}
	publisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange, logr)
	if err != nil {
		return nil, fmt.Errorf("connect event broker: %w", err)
	}
	return publisher, nil
}

func newGateway(cfg config.PaymentsConfig, logr *zap.Logger) (*gateway.Adapter, error) {
	gwCfg := gateway.Config{
		Currency:      cfg.Currency,
		BrandName:     cfg.BrandName,
		SimulateDelay: cfg.SimulateDelay,
	}
	client, err := gateway.NewPayPalClient(cfg.PayPalClientID, cfg.PayPalSecret, cfg.PayPalEnvironment)
	switch {
	case errors.Is(err, gateway.ErrLiveNotConfigured):
		if cfg.Mode == config.PaymentModeLive {
			return nil, fmt.Errorf("PAYMENT_MODE=live requires PayPal credentials: %w", err)
		}
		return gateway.NewAdapter(nil, gwCfg, logr), nil
	case err != nil:
		return nil, err
	}
	return gateway.NewAdapter(client, gwCfg, logr), nil
}

func sweepExports(ctx context.Context, exports *service.ExportService, ttl time.Duration, logr *zap.Logger) {
	interval := ttl
	if interval <= 0 || interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := exports.Cleanup(0)
			if err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				logr.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}
