package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/paud-admission-api/api/swagger"
	"github.com/noah-isme/paud-admission-api/internal/handler"
	"github.com/noah-isme/paud-admission-api/internal/middleware"
	"github.com/noah-isme/paud-admission-api/internal/models"
	"github.com/noah-isme/paud-admission-api/internal/repository"
	"github.com/noah-isme/paud-admission-api/internal/service"
	"github.com/noah-isme/paud-admission-api/pkg/cache"
	"github.com/noah-isme/paud-admission-api/pkg/config"
	"github.com/noah-isme/paud-admission-api/pkg/database"
	"github.com/noah-isme/paud-admission-api/pkg/jobs"
	"github.com/noah-isme/paud-admission-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/paud-admission-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/paud-admission-api/pkg/middleware/requestid"
	"github.com/noah-isme/paud-admission-api/pkg/storage"
)

// @title PAUD Admission API
// @version 1.0.0
// @description Waitlist and admission service for early childhood education institutions
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
		logr.Sugar().Warnw("redis unavailable, snapshot caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	participantRepo := repository.NewParticipantRepository(db)
	classRepo := repository.NewClassRepository(db)
	institutionRepo := repository.NewInstitutionRepository(db)
	reportRepo := repository.NewReportRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	queueSvc := service.NewQueueService(participantRepo, cacheRepo, logr)
	capacitySvc := service.NewCapacityService(classRepo, metricsSvc, logr)
	lotterySvc := service.NewLotteryService(participantRepo, cacheRepo, logr)
	admissionSvc := service.NewAdmissionService(
		participantRepo, classRepo, institutionRepo,
		queueSvc, capacitySvc, lotterySvc,
		cacheRepo, metricsSvc, validate, logr,
		cfg.Admission.SnapshotCacheTTL,
	)

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

		var reportQueue *jobs.Queue
		reportSvc = service.NewReportService(reportRepo, enqueuerFunc(func(job jobs.Job) error {
			return reportQueue.Enqueue(job)
		}), admissionSvc, participantRepo, classRepo, store, signer, cfg.Reports.WorkerRetries, validate, logr)

		reportQueue = jobs.NewQueue("reports", reportSvc.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)
		defer reportQueue.Stop()

		if _, err := reportSvc.RecoverPendingJobs(ctx, 100); err != nil {
			logr.Sugar().Warnw("failed to recover pending report jobs", "error", err)
		}
	}

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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	participantHandler := handler.NewParticipantHandler(admissionSvc)
	waitlistHandler := handler.NewWaitlistHandler(queueSvc, lotterySvc, admissionSvc)
	admissionHandler := handler.NewAdmissionHandler(admissionSvc)
	classHandler := handler.NewClassHandler(capacitySvc)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(cfg.JWT.Secret, cfg.JWT.Issuer))

	staff := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleStaff)
	admins := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)

	api.POST("/participants", staff, participantHandler.Register)
	api.GET("/participants", staff, participantHandler.List)
	api.PATCH("/participants/:id/status", admins, participantHandler.ChangeStatus)
	api.POST("/participants/:id/waitlist", admins, waitlistHandler.Enter)
	api.POST("/participants/:id/admit", admins, admissionHandler.ManualAdmit)

	institutions := api.Group("/institutions/:id", staff, middleware.InstitutionScope("id"))
	institutions.GET("/waitlist", waitlistHandler.Snapshot)
	institutions.GET("/waitlist/groups", waitlistHandler.Groups)
	institutions.GET("/classes", classHandler.List)
	institutions.GET("/capacity", classHandler.Capacity)
	institutions.POST("/waitlist/reseed", admins, waitlistHandler.Reseed)
	if cfg.Admission.PassEnabled {
		institutions.POST("/admissions/run", admins, admissionHandler.RunPass)
	}

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		api.POST("/reports", admins, reportHandler.Create)
		api.GET("/reports/:id", staff, reportHandler.Status)
		// Download token carries its own signature.
		r.GET("/reports/download", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

type enqueuerFunc func(jobs.Job) error

func (f enqueuerFunc) Enqueue(job jobs.Job) error { return f(job) }
