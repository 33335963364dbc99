package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-pass-api/api/swagger"
	"github.com/noah-isme/campus-pass-api/internal/handler"
	"github.com/noah-isme/campus-pass-api/internal/middleware"
	"github.com/noah-isme/campus-pass-api/internal/models"
	"github.com/noah-isme/campus-pass-api/internal/repository"
	"github.com/noah-isme/campus-pass-api/internal/service"
	"github.com/noah-isme/campus-pass-api/pkg/cache"
	"github.com/noah-isme/campus-pass-api/pkg/config"
	"github.com/noah-isme/campus-pass-api/pkg/database"
	"github.com/noah-isme/campus-pass-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-pass-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-pass-api/pkg/middleware/requestid"
	"github.com/noah-isme/campus-pass-api/pkg/storage"
)

// @title Campus Pass API
// @version 1.0.0
// @description Pass authorization engine for campus gate passes
// @BasePath /api/v1
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	passRepo := repository.NewPassRepository(db)
	trustRepo := repository.NewTrustRepository(db)
	restrictionRepo := repository.NewRestrictionRepository(db)
	delegationRepo := repository.NewDelegationRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	mobilityRepo := repository.NewMobilityRepository(db)

	metricsSvc := service.NewMetricsService()

	// Restriction lookups ride on redis when available; a missing cache just
	// means every check hits postgres.
	var cacheSvc *service.CacheService
	if cfg.Pass.RestrictionCaching {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, restriction caching disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Pass.RestrictionTTL, logr, true)
		}
	}

	// Services.
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "campus-pass-api",
	})
	trustSvc := service.NewTrustService(trustRepo, userRepo, cfg.Pass, validate, logr)
	restrictionSvc := service.NewRestrictionService(restrictionRepo, studentRepo, userRepo, cacheSvc, cfg.Pass, validate, logr)
	delegationSvc := service.NewDelegationService(delegationRepo, userRepo, userRepo, validate, logr)
	leaveSvc := service.NewLeaveService(leaveRepo, validate, logr)
	passSvc := service.NewPassService(passRepo, studentRepo, userRepo, delegationRepo, restrictionSvc, userRepo, metricsSvc, validate, logr)
	mobilitySvc := service.NewMobilityService(mobilityRepo, passRepo, restrictionSvc, trustSvc, metricsSvc, cfg.Pass, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mobilitySvc.StartQueue(rootCtx)
	defer mobilitySvc.StopQueue()
	go mobilitySvc.RunSweeper(rootCtx)

	var exportSvc *service.ExportService
	if cfg.Exports.Enabled {
		localFiles, err := storage.NewLocalStorage(cfg.Exports.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare exports directory", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignSecret, cfg.Exports.ResultTTL)
		exportSvc = service.NewExportService(passRepo, localFiles, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.ResultTTL,
		}, logr, nil, nil)
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	passHandler := handler.NewPassHandler(passSvc)
	gateHandler := handler.NewGateHandler(mobilitySvc)
	trustHandler := handler.NewTrustHandler(trustSvc)
	restrictionHandler := handler.NewRestrictionHandler(restrictionSvc)
	delegationHandler := handler.NewDelegationHandler(delegationSvc)
	leaveHandler := handler.NewLeaveHandler(leaveSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	staffRoles := middleware.RequireRoles(models.RoleAdmin, models.RoleDepartmentHead, models.RoleMentor, models.RoleWarden)
	seniorRoles := middleware.RequireRoles(models.SeniorStaffRoles...)

	passes := api.Group("/passes", middleware.JWT(authSvc))
	{
		passes.POST("", middleware.RequireRoles(models.RoleStudent), passHandler.Submit)
		passes.GET("", passHandler.List)
		passes.GET("/pending", staffRoles, passHandler.Pending)
		passes.POST("/emergency", seniorRoles, passHandler.IssueEmergency)
		passes.GET("/:id", passHandler.Get)
		passes.POST("/:id/decision", staffRoles, passHandler.Decide)
		passes.POST("/:id/cancel", passHandler.Cancel)
		passes.PUT("/:id/emergency", seniorRoles, passHandler.UpdateEmergency)
		passes.DELETE("/:id/emergency", seniorRoles, passHandler.RevokeEmergency)
		passes.GET("/:id/events", staffRoles, gateHandler.PassEvents)
	}

	gate := api.Group("/gate", middleware.GateDevice(cfg.Gate.DeviceToken))
	{
		gate.POST("/scan", middleware.Audit(userRepo, "GATE_SCAN", "gate"), gateHandler.Scan)
		gate.GET("/admission/:student_id", gateHandler.Admission)
	}
	api.GET("/gate/anomalies", middleware.JWT(authSvc), middleware.RequireRoles(models.RoleWarden, models.RoleAdmin), gateHandler.Anomalies)

	students := api.Group("/students", middleware.JWT(authSvc), staffRoles)
	{
		students.GET("", studentHandler.List)
		students.GET("/:id", studentHandler.Get)
		students.GET("/:id/trust", trustHandler.History)
		students.PUT("/:id/trust", seniorRoles, trustHandler.Adjust)
		students.POST("/:id/cooldown/reset", seniorRoles, trustHandler.ResetCooldown)
		students.PUT("/:id/block", seniorRoles, restrictionHandler.SetHardBlock)
		students.GET("/:id/restrictions", restrictionHandler.CheckStudent)
	}

	restrictions := api.Group("/restrictions", middleware.JWT(authSvc))
	{
		restrictions.GET("", staffRoles, restrictionHandler.List)
		restrictions.POST("/cohort", middleware.RequireRoles(models.RoleDepartmentHead, models.RoleAdmin), restrictionHandler.SetCohort)
		restrictions.DELETE("/cohort/:id", middleware.RequireRoles(models.RoleDepartmentHead, models.RoleAdmin), restrictionHandler.ClearCohort)
	}

	delegations := api.Group("/delegations", middleware.JWT(authSvc), staffRoles)
	{
		delegations.PUT("", delegationHandler.Set)
		delegations.DELETE("", delegationHandler.Revoke)
		delegations.GET("/me", delegationHandler.Current)
		delegations.GET("", middleware.RequireRoles(models.RoleAdmin), delegationHandler.List)
	}

	leaves := api.Group("/leaves", middleware.JWT(authSvc), staffRoles)
	{
		leaves.POST("", leaveHandler.File)
		leaves.GET("", leaveHandler.List)
		leaves.POST("/:id/review", middleware.RequireRoles(models.RoleDepartmentHead, models.RoleAdmin), leaveHandler.Review)
	}

	if exportSvc != nil {
		exportHandler := handler.NewExportHandler(exportSvc)
		exports := api.Group("/exports")
		exports.POST("/pass-history", middleware.JWT(authSvc), staffRoles, exportHandler.Generate)
		exports.GET("/:token", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Sugar().Infow("server shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
