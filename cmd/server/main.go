package main

import (
	"context"
	"net/http"
	"os"

	"github.com/clipshare/backend/internal/api"
	"github.com/clipshare/backend/internal/auth"
	"github.com/clipshare/backend/internal/cache"
	"github.com/clipshare/backend/internal/config"
	"github.com/clipshare/backend/internal/db"
	"github.com/clipshare/backend/internal/health"
	"github.com/clipshare/backend/internal/logger"
	"github.com/clipshare/backend/internal/media"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()

	log := logger.New(os.Stdout, logger.LevelInfo, "server")
	logger.SetDefault(logger.New(os.Stdout, logger.LevelInfo, ""))

	database, err := db.New(cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	if err != nil {
		log.Error(ctx, "failed to connect to database", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Error(ctx, "failed to run migrations", err)
		os.Exit(1)
	}

	profileCache, err := cache.New(cfg.RedisAddr)
	if err != nil {
		// Profile caching is best-effort; run without it.
		log.Warn(ctx, "redis unavailable, profile cache disabled", map[string]any{
			"addr": cfg.RedisAddr,
		})
		profileCache = nil
	} else {
		defer profileCache.Close()
	}

	mediaStore, err := media.NewS3Store(cfg)
	if err != nil {
		log.Error(ctx, "failed to create media store", err)
		os.Exit(1)
	}

	mediaClient, err := media.NewClient(&media.ClientConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		log.Error(ctx, "failed to create media client", err)
		os.Exit(1)
	}
	if err := mediaClient.EnsureBucket(ctx); err != nil {
		log.Error(ctx, "failed to ensure media bucket", err)
		os.Exit(1)
	}

	userRepo := db.NewUserRepository(database)
	tokens := auth.NewTokenManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	var profiles auth.ProfileCache
	if profileCache != nil {
		profiles = profileCache
	}
	authService := auth.NewService(userRepo, tokens, profiles, cfg.BcryptCost)
	authHandlers := auth.NewHandlers(authService, mediaStore)
	mediaHandlers := media.NewHandler(mediaClient)

	checkerCfg := &health.CheckerConfig{
		DB:           database.DB,
		StorageCheck: mediaClient.Ping,
		Version:      version,
	}
	if profileCache != nil {
		checkerCfg.Redis = profileCache.Client()
	}
	healthHandlers := health.NewHandler(health.NewChecker(checkerCfg))

	router := api.NewRouter(authHandlers, tokens, mediaHandlers, healthHandlers, cfg.CORSOrigins)

	log.Info(ctx, "starting server", map[string]any{"addr": cfg.ServerAddr})
	if err := http.ListenAndServe(cfg.ServerAddr, router.Handler()); err != nil {
		log.Error(ctx, "server failed", err)
		os.Exit(1)
	}
}

// version is stamped at build time.
var version = "dev"
