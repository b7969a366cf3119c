package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/uni-registrar-api/api/swagger"
	"github.com/noah-isme/uni-registrar-api/internal/handler"
	"github.com/noah-isme/uni-registrar-api/internal/middleware"
	"github.com/noah-isme/uni-registrar-api/internal/models"
	"github.com/noah-isme/uni-registrar-api/internal/repository"
	"github.com/noah-isme/uni-registrar-api/internal/service"
	"github.com/noah-isme/uni-registrar-api/pkg/cache"
	"github.com/noah-isme/uni-registrar-api/pkg/config"
	"github.com/noah-isme/uni-registrar-api/pkg/database"
	"github.com/noah-isme/uni-registrar-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/uni-registrar-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/uni-registrar-api/pkg/middleware/requestid"
)

// @title University Registrar API
// @version 1.0.0
// @description Course registration engine with admission control and school-scoped authorization
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
	} else {
		defer redisClient.Close()
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Registration.AvailabilityCacheTTL, logr, true)
	}

	userRepo := repository.NewUserRepository(db)
	scopeRepo := repository.NewScopeRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	slotRepo := repository.NewScheduleSlotRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	termRepo := repository.NewTermRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	profileRepo := repository.NewProfessorProfileRepository(db)

	gate := service.NewAuthorizationService(scopeRepo, logr)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "uni-registrar-api",
	})
	admissionSvc := service.NewAdmissionService(sectionRepo, slotRepo, registrationRepo, userRepo, gate, db, metrics, cacheSvc, nil, logr)
	sectionSvc := service.NewSectionService(sectionRepo, registrationRepo, profileRepo, slotRepo, scopeRepo, gate, cacheSvc, cfg.Registration.AvailabilityCacheTTL, nil, logr)
	termSvc := service.NewTermService(termRepo, logr)
	courseSvc := service.NewCourseService(courseRepo, logr)
	profileSvc := service.NewProfessorProfileService(profileRepo, gate, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	registrationHandler := handler.NewRegistrationHandler(admissionSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc, cfg.Export.Enabled)
	termHandler := handler.NewTermHandler(termSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	profileHandler := handler.NewProfessorProfileHandler(profileSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		}

		authorized := api.Group("")
		authorized.Use(middleware.JWT(authSvc))
		{
			terms := authorized.Group("/terms")
			{
				terms.GET("", termHandler.List)
				terms.GET("/:id", termHandler.Get)
			}

			courses := authorized.Group("/courses")
			{
				courses.GET("", courseHandler.List)
				courses.GET("/:id", courseHandler.Get)
			}

			sections := authorized.Group("/sections")
			{
				sections.GET("", sectionHandler.List)
				sections.GET("/:id", sectionHandler.Get)
				sections.GET("/:id/availability", sectionHandler.Availability)
				sections.GET("/:id/roster/export", sectionHandler.ExportRoster)
				sections.POST("",
					middleware.RequireAccess(gate, models.ActionCreate, models.ResourceSection),
					middleware.Audit(userRepo, models.AuditActionSectionCreate, "section"),
					sectionHandler.Create)
				sections.PUT("/:id",
					middleware.RequireAccess(gate, models.ActionUpdate, models.ResourceSection),
					middleware.Audit(userRepo, models.AuditActionSectionUpdate, "section"),
					sectionHandler.Update)
				sections.DELETE("/:id",
					middleware.RequireAccess(gate, models.ActionDelete, models.ResourceSection),
					middleware.Audit(userRepo, models.AuditActionSectionDelete, "section"),
					sectionHandler.Delete)
			}

			registrations := authorized.Group("/registrations")
			{
				registrations.GET("", registrationHandler.List)
				registrations.POST("",
					middleware.Audit(userRepo, models.AuditActionRegistrationCreate, "registration"),
					registrationHandler.Create)
				if cfg.Registration.PreviewEnabled {
					registrations.POST("/preview", registrationHandler.Preview)
				}
				registrations.DELETE("/:id",
					middleware.Audit(userRepo, models.AuditActionRegistrationDrop, "registration"),
					registrationHandler.Delete)
			}

			professors := authorized.Group("/professors")
			{
				professors.GET("/me", middleware.RequireRoles(models.RoleProfessor), profileHandler.GetOwn)
				professors.GET("/:id", profileHandler.Get)
				professors.PUT("/:id", profileHandler.Update)
			}
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
