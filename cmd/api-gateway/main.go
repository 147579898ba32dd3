package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/tutor-identity-api/api/swagger"
	"github.com/noah-isme/tutor-identity-api/internal/handler"
	"github.com/noah-isme/tutor-identity-api/internal/middleware"
	"github.com/noah-isme/tutor-identity-api/internal/models"
	"github.com/noah-isme/tutor-identity-api/internal/repository"
	"github.com/noah-isme/tutor-identity-api/internal/service"
	"github.com/noah-isme/tutor-identity-api/pkg/cache"
	"github.com/noah-isme/tutor-identity-api/pkg/config"
	"github.com/noah-isme/tutor-identity-api/pkg/database"
	"github.com/noah-isme/tutor-identity-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tutor-identity-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tutor-identity-api/pkg/middleware/requestid"
)

// @title Tutor Identity API
// @version 1.0.0
// @description Shadow student profiles, invitations and claim/merge reconciliation for tutors.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Claims.ThrottleEnabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, claim throttle disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewStudentProfileRepository(db)
	relationRepo := repository.NewRelationRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	ledgerRepo := repository.NewInviteLedgerRepository(db)
	attemptRepo := repository.NewAttemptRepository(redisClient)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	inviteSvc := service.NewInviteService(profileRepo, ledgerRepo, userRepo, classroomRepo, metricsSvc, logr, service.InviteConfig{
		TokenTTL: cfg.Invites.TokenTTL,
	})
	throttleSvc := service.NewClaimThrottleService(attemptRepo, logr, service.ClaimThrottleConfig{
		Enabled:           cfg.Claims.ThrottleEnabled && redisClient != nil,
		MaxFailedAttempts: cfg.Claims.MaxFailedAttempts,
		Window:            cfg.Claims.AttemptWindow,
	})
	shadowSvc := service.NewShadowProfileService(profileRepo, relationRepo, classroomRepo, userRepo, inviteSvc, db, validate, logr)
	claimSvc := service.NewClaimService(userRepo, profileRepo, relationRepo, classroomRepo, ledgerRepo, inviteSvc, throttleSvc, metricsSvc, db, logr)
	relationSvc := service.NewRelationService(relationRepo, profileRepo, userRepo, inviteSvc, db, validate, logr)

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	studentHandler := handler.NewStudentHandler(shadowSvc, relationSvc)
	inviteHandler := handler.NewInviteHandler(inviteSvc, claimSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metricsSvc != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix, middleware.JWT(authSvc))

	teacher := api.Group("/teacher/students", middleware.RequireRoles(models.RoleTeacher))
	teacher.GET("", studentHandler.List)
	teacher.POST("", studentHandler.Create)
	teacher.PATCH("/:studentId", studentHandler.Update)
	teacher.DELETE("/:studentId", studentHandler.Delete)
	teacher.POST("/:studentId/archive", studentHandler.Archive)
	teacher.POST("/:studentId/restore", studentHandler.Restore)
	teacher.POST("/:studentId/invite", studentHandler.RegenerateInvite)
	teacher.PUT("/:studentId/invite", studentHandler.ToggleInvite)

	invites := api.Group("/invites")
	invites.GET("/:token", inviteHandler.Preview)
	invites.POST("/:token/claim", middleware.RequireRoles(models.RoleStudent), inviteHandler.Claim)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
