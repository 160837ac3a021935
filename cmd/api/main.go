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
	"go.uber.org/zap"

	"github.com/gradesheet/gradesheet-api/internal/handler"
	"github.com/gradesheet/gradesheet-api/internal/middleware"
	"github.com/gradesheet/gradesheet-api/internal/repository"
	"github.com/gradesheet/gradesheet-api/internal/service"
	"github.com/gradesheet/gradesheet-api/internal/vision"
	"github.com/gradesheet/gradesheet-api/pkg/cache"
	"github.com/gradesheet/gradesheet-api/pkg/config"
	"github.com/gradesheet/gradesheet-api/pkg/database"
	"github.com/gradesheet/gradesheet-api/pkg/export"
	"github.com/gradesheet/gradesheet-api/pkg/logger"
	corsmiddleware "github.com/gradesheet/gradesheet-api/pkg/middleware/cors"
	reqidmiddleware "github.com/gradesheet/gradesheet-api/pkg/middleware/requestid"
	"github.com/gradesheet/gradesheet-api/pkg/storage"
)

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, roster cache disabled", zap.Error(err))
		redisClient = nil
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	exportStore, err := storage.NewLocalStore(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("prepare export storage", zap.Error(err))
	}
	signer := storage.NewDownloadSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	metricsSvc := service.NewMetricsService()
	visionClient := vision.NewClient(cfg.Vision, logr)
	reconcileSvc := service.NewReconcileService(logr)
	rosterSvc := service.NewRosterService(classRepo, studentRepo, enrollmentRepo, cacheRepo, logr)
	batchSvc := service.NewBatchService(visionClient, reconcileSvc, metricsSvc, cfg.Batch, logr)
	ledgerSvc := service.NewLedgerService(classRepo, studentRepo, scoreRepo, enrollmentRepo, logr)
	exportSvc := service.NewExportService(ledgerSvc, export.NewCSVExporter(), export.NewPDFExporter(),
		exportStore, signer, metricsSvc, cfg.Exports.SignedURLTTL, logr)
	exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)

	batchHandler := handler.NewBatchHandler(batchSvc, rosterSvc, logr)
	rosterHandler := handler.NewRosterHandler(rosterSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(rosterSvc)
	exportHandler := handler.NewExportHandler(exportSvc, logr)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	{
		api.POST("/batches", batchHandler.Create)

		api.POST("/rosters/paste", rosterHandler.Paste)
		api.POST("/rosters/import", rosterHandler.Import)
		api.POST("/rosters/blank", rosterHandler.Blank)

		api.GET("/classes", rosterHandler.ListClasses)
		api.DELETE("/classes/:id", rosterHandler.DeleteClass)
		api.PUT("/classes/:id/subjects/:subject/enrollments", enrollmentHandler.Replace)

		api.PUT("/students/:id/name", rosterHandler.RenameStudent)
		api.PUT("/students/:id/class", rosterHandler.MoveStudent)
		api.DELETE("/students/:id", rosterHandler.DeleteStudent)

		api.POST("/exports", exportHandler.Create)
		api.GET("/exports/:token", exportHandler.Download)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
