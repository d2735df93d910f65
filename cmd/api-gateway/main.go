package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/omr-grade-api/api/swagger"
	"github.com/noah-isme/omr-grade-api/internal/handler"
	"github.com/noah-isme/omr-grade-api/internal/middleware"
	"github.com/noah-isme/omr-grade-api/internal/models"
	"github.com/noah-isme/omr-grade-api/internal/omr"
	"github.com/noah-isme/omr-grade-api/internal/repository"
	"github.com/noah-isme/omr-grade-api/internal/service"
	"github.com/noah-isme/omr-grade-api/pkg/cache"
	"github.com/noah-isme/omr-grade-api/pkg/config"
	"github.com/noah-isme/omr-grade-api/pkg/database"
	"github.com/noah-isme/omr-grade-api/pkg/jobs"
	"github.com/noah-isme/omr-grade-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/omr-grade-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/omr-grade-api/pkg/middleware/requestid"
	"github.com/noah-isme/omr-grade-api/pkg/storage"
)

// @title OMR Grade API
// @version 0.1.0
// @description Scan ingestion, review, scoring and item analysis for OMR answer sheets
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Analytics caching is best-effort; the pipeline runs without it.
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	scanStore, err := storage.NewLocalStorage(cfg.Scans.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare scan storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Scans.SignedURLSecret, cfg.Scans.SignedURLTTL)

	// repositories
	scanRepo := repository.NewScanRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	lookupRepo := repository.NewLookupRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// services
	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, logr)
	authService := service.NewAuthService(lookupRepo, cfg.JWT, logr)
	scoringService := service.NewScoringService(scoreRepo, scanRepo, lookupRepo, cacheService, metricsService, logr)
	scanService := service.NewScanService(
		scanRepo, lookupRepo, omr.NewSidecarExtractor(), scanStore, signer,
		scoringService, metricsService, cfg, logr)
	analyticsService := service.NewAnalyticsService(analyticsRepo, lookupRepo, cacheService, cfg.Analytics, logr)
	exportService := service.NewExportService(scoreRepo, lookupRepo, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	extractionQueue := jobs.NewQueue("scan-extraction", scanService.HandleExtractionJob, jobs.QueueConfig{
		Workers:    cfg.OMR.WorkerConcurrency,
		MaxRetries: cfg.OMR.WorkerRetries,
		Logger:     logr,
	})
	extractionQueue.Start(ctx)
	defer extractionQueue.Stop()
	scanService.AttachQueue(extractionQueue)

	// handlers
	authHandler := handler.NewAuthHandler(authService)
	scanHandler := handler.NewScanHandler(scanService)
	scoreHandler := handler.NewScoreHandler(scoringService, exportService)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsService.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/scans/image", scanHandler.Image)

	authed := api.Group("")
	authed.Use(middleware.JWTAuth(authService))
	{
		authed.GET("/scans", scanHandler.List)
		authed.GET("/scans/:id", scanHandler.Get)
		authed.GET("/scans/:id/overlay", scanHandler.Overlay)
		authed.POST("/scans", scanHandler.Create)
		authed.POST("/scans/:id/review", scanHandler.Review)

		authed.GET("/exams/:id/scores", scoreHandler.ListByExam)
		authed.GET("/exams/:id/export", scoreHandler.Export)
		authed.GET("/analysis/exams/:id", analyticsHandler.ExamAnalytics)

		admin := authed.Group("")
		admin.Use(middleware.RequireRoles(models.RoleAdmin))
		{
			admin.POST("/exams/:id/recompute", scoreHandler.Recompute)
			admin.POST("/scores/bulk", scoreHandler.BulkUpsert)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
