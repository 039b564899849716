package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/mathcomp-api/internal/repository"
	"github.com/noah-isme/mathcomp-api/internal/service"
	"github.com/noah-isme/mathcomp-api/pkg/cache"
	"github.com/noah-isme/mathcomp-api/pkg/config"
	"github.com/noah-isme/mathcomp-api/pkg/database"
	"github.com/noah-isme/mathcomp-api/pkg/logger"
)

// env carries what every subcommand needs once config has loaded.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "compctl",
		Short:         "Operator tooling for the math competition registration service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newSeedCmd(),
		newExportCmd(),
		newCreateAdminCmd(),
	)
	return root
}

// withEnv loads config, opens the database and hands both to fn.
func withEnv(ctx context.Context, fn func(ctx context.Context, e *env) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	return fn(ctx, &env{cfg: cfg, logger: logr, db: db})
}

// cache connects to Redis so writes invalidate what the API has cached. A
// disabled or unreachable Redis yields a no-op cache.
func (e *env) cache(ctx context.Context) *service.CacheService {
	client, err := cache.NewRedis(ctx, e.cfg.Redis)
	if err != nil {
		e.logger.Warn("redis unavailable, cached competition lists are not invalidated", zap.Error(err))
		return nil
	}
	if client == nil {
		return nil
	}
	return service.NewCacheService(repository.NewCacheRepository(client, e.logger), nil, e.cfg.Competitions.CacheTTL, e.logger, true)
}
