package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/madrasa-dev/timetable-api/api/swagger"
	"github.com/madrasa-dev/timetable-api/internal/handler"
	"github.com/madrasa-dev/timetable-api/internal/middleware"
	"github.com/madrasa-dev/timetable-api/internal/repository"
	"github.com/madrasa-dev/timetable-api/internal/service"
	"github.com/madrasa-dev/timetable-api/pkg/cache"
	"github.com/madrasa-dev/timetable-api/pkg/config"
	"github.com/madrasa-dev/timetable-api/pkg/database"
	"github.com/madrasa-dev/timetable-api/pkg/logger"
	corsmiddleware "github.com/madrasa-dev/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/madrasa-dev/timetable-api/pkg/middleware/requestid"
	"github.com/madrasa-dev/timetable-api/pkg/storage"
)

// @title Timetable API
// @version 1.0.0
// @description School timetable scheduling service: assignments, automatic generation, swaps.
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
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.SwapCache.Enabled {
		redisClient, rerr := cache.NewRedis(cfg.Redis)
		if rerr != nil {
			logr.Sugar().Warnw("redis unavailable, swap validity cache disabled", "error", rerr)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.SwapCache.TTL, logr, true)
		}
	}
	swapCache := service.NewSwapValidityCache(cacheSvc, cfg.SwapCache.TTL)

	assignmentRepo := repository.NewAssignmentRepository(db)
	classRepo := repository.NewClassRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	yearRepo := repository.NewAcademicYearRepository(db)
	qualificationRepo := repository.NewTeacherAssignmentRepository(db)

	assignmentSvc := service.NewAssignmentService(assignmentRepo, teacherRepo, swapCache, db, nil, logr)
	generatorSvc := service.NewGeneratorService(
		assignmentRepo,
		classRepo,
		subjectRepo,
		qualificationRepo,
		teacherRepo,
		yearRepo,
		db,
		swapCache,
		metricsSvc,
		nil,
		logr,
		service.GeneratorConfig{PreviewTTL: cfg.Scheduler.PreviewTTL},
	)
	swapSvc := service.NewSwapService(assignmentRepo, teacherRepo, swapCache, db, metricsSvc, nil, logr)
	classSvc := service.NewClassService(classRepo, logr)
	teacherSvc := service.NewTeacherService(teacherRepo, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, logr)

	exportStore, err := storage.NewExportStore(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewDownloadTokenSigner(cfg.Export.SignSecret, cfg.Export.URLTTL)
	exportSvc := service.NewExportService(assignmentRepo, subjectRepo, teacherRepo, exportStore, signer, nil, logr)

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			deleted, cerr := exportStore.CleanupOlderThan(cfg.Export.FileTTL)
			if cerr != nil {
				logr.Sugar().Warnw("export cleanup failed", "error", cerr)
				continue
			}
			if len(deleted) > 0 {
				logr.Sugar().Infow("expired exports removed", "count", len(deleted))
			}
		}
	}()

	scheduleHandler := handler.NewScheduleHandler(assignmentSvc)
	generatorHandler := handler.NewGeneratorHandler(generatorSvc)
	swapHandler := handler.NewSwapHandler(swapSvc)
	classHandler := handler.NewClassHandler(classSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

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
		if err := db.Ping(); err != nil {
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
	{
		schedules := api.Group("/schedules")
		{
			schedules.GET("", scheduleHandler.List)
			schedules.POST("", scheduleHandler.Create)
			schedules.GET("/grid", scheduleHandler.Grid)
			schedules.GET("/conflicts", scheduleHandler.ListConflicts)
			schedules.DELETE("/class-schedule", scheduleHandler.DeleteClassSchedule)

			schedules.POST("/generate", generatorHandler.Generate)
			schedules.POST("/generate-all", generatorHandler.GenerateAll)
			schedules.POST("/save-preview", generatorHandler.SavePreview)
			schedules.DELETE("/preview/:previewId", generatorHandler.DiscardPreview)

			schedules.POST("/swap/validate", swapHandler.Validate)
			schedules.POST("/swap", swapHandler.Execute)

			schedules.POST("/export", exportHandler.ExportGrid)

			schedules.GET("/:id", scheduleHandler.Get)
			schedules.PUT("/:id", scheduleHandler.Update)
			schedules.DELETE("/:id", scheduleHandler.Delete)
		}

		classes := api.Group("/classes")
		{
			classes.GET("", classHandler.List)
			classes.GET("/:id", classHandler.Get)
			classes.GET("/:id/sections", classHandler.ListSections)
		}

		teachers := api.Group("/teachers")
		{
			teachers.GET("", teacherHandler.List)
			teachers.GET("/:id", teacherHandler.Get)
			teachers.GET("/:id/blackouts", teacherHandler.ListBlackouts)
		}

		subjects := api.Group("/subjects")
		{
			subjects.GET("", subjectHandler.List)
			subjects.GET("/:id", subjectHandler.Get)
		}

		api.GET("/exports/:token", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
