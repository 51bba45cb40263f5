package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-portal-api/api/swagger"
	"github.com/noah-isme/campus-portal-api/internal/handler"
	"github.com/noah-isme/campus-portal-api/internal/middleware"
	"github.com/noah-isme/campus-portal-api/internal/repository"
	"github.com/noah-isme/campus-portal-api/internal/service"
	"github.com/noah-isme/campus-portal-api/pkg/cache"
	"github.com/noah-isme/campus-portal-api/pkg/config"
	"github.com/noah-isme/campus-portal-api/pkg/database"
	"github.com/noah-isme/campus-portal-api/pkg/jobs"
	"github.com/noah-isme/campus-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-portal-api/pkg/middleware/requestid"
)

// @title Campus Portal Registration API
// @version 1.0.0
// @description Course registration and enrollment transaction engine
// @BasePath /
// @schemes http

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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, course cache disabled", "error", err)
		redisClient = nil
	}

	// Repositories.
	catalogRepo := repository.NewCatalogRepository(db)
	periodRepo := repository.NewPeriodRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	financeRepo := repository.NewFinanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck
	store := repository.NewRegistrationStore(db, batchRepo, enrollmentRepo, periodRepo)

	// Services.
	eligibilitySvc := service.NewEligibilityService(periodRepo, studentRepo, enrollmentRepo, logr)
	requirementSvc := service.NewRequirementService(catalogRepo, enrollmentRepo, cacheRepo, cfg.Registration.CourseCacheTTL, logr)
	financeSvc := service.NewFinanceService(periodRepo, studentRepo, enrollmentRepo, financeRepo, cfg.Registration, logr)
	periodSvc := service.NewPeriodService(periodRepo, logr)

	// Post-commit financial seeding runs on an in-process worker queue;
	// the handler is idempotent, so queue retries cannot double-bill.
	var metricsSvc *service.MetricsService
	seedHandler := service.SeedJobHandler(financeSvc)
	seedQueue := jobs.NewQueue("finance_seed", func(ctx context.Context, job jobs.Job) error {
		err := seedHandler(ctx, job)
		if metricsSvc != nil {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			metricsSvc.ObserveSeedJob(outcome)
		}
		return err
	}, jobs.QueueConfig{
		Workers:    cfg.Registration.SeedWorkers,
		BufferSize: cfg.Registration.SeedBufferSize,
		MaxRetries: cfg.Registration.SeedRetries,
		RetryDelay: cfg.Registration.SeedRetryDelay,
		Logger:     logr,
	})
	seedQueue.Start(context.Background())
	defer seedQueue.Stop()

	metricsSvc = service.NewMetricsService(func() float64 { return float64(seedQueue.Depth()) })

	registrationSvc := service.NewRegistrationService(
		eligibilitySvc,
		requirementSvc,
		store,
		service.NewSeedDispatcher(seedQueue),
		cfg.Registration,
		nil,
		logr,
	)

	// Handlers.
	registrationHandler := handler.NewRegistrationHandler(eligibilitySvc, requirementSvc, registrationSvc, financeSvc, metricsSvc)
	periodHandler := handler.NewPeriodHandler(periodSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.Auth))
	{
		api.GET("/registration/eligibility", registrationHandler.Eligibility)
		api.GET("/registration/courses", registrationHandler.Courses)
		api.POST("/registration", registrationHandler.Register)
		api.GET("/registration/statement", registrationHandler.Statement)
		api.GET("/periods", periodHandler.List)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
