package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campusware/sis-api/api/swagger"
	"github.com/campusware/sis-api/internal/handler"
	internalmiddleware "github.com/campusware/sis-api/internal/middleware"
	"github.com/campusware/sis-api/internal/models"
	"github.com/campusware/sis-api/internal/repository"
	"github.com/campusware/sis-api/internal/service"
	"github.com/campusware/sis-api/pkg/cache"
	"github.com/campusware/sis-api/pkg/config"
	"github.com/campusware/sis-api/pkg/database"
	"github.com/campusware/sis-api/pkg/logger"
	corsmiddleware "github.com/campusware/sis-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campusware/sis-api/pkg/middleware/requestid"
)

// @title Campusware SIS API
// @version 1.0.0
// @description Student information system core: request workflows, course registration, waitlists and the student ledger.
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
	defer db.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	waitlistRepo := repository.NewWaitlistRepository(db)
	financialRepo := repository.NewFinancialRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "sis-api",
	})

	workflowService := service.NewWorkflowService(
		requestRepo,
		userRepo,
		buildWorkflowTemplates(cfg.Requests),
		validate,
		logr,
		service.WithApprovalHandlers(service.LoggingApprovalHandlers(logr)),
		service.WithFallbackWorkflow(fallbackWorkflow(cfg.Requests)),
	)

	registrationService := service.NewRegistrationService(
		courseRepo,
		enrollmentRepo,
		gradeRepo,
		financialRepo,
		waitlistRepo,
		registrationRepo,
		userRepo,
		logr,
		service.WithTuitionDueDays(cfg.Registration.TuitionDueDays),
	)

	financialService := service.NewFinancialService(financialRepo, userRepo, validate, logr)
	gradeService := service.NewGradeService(gradeRepo, logr, nil)

	courseService := service.NewCourseService(courseRepo, nil, cfg.Catalog.CacheTTL, logr)
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			courseService = service.NewCourseService(courseRepo, cacheRepo, cfg.Catalog.CacheTTL, logr)
		}
	}

	metricsService := service.NewMetricsService()

	authHandler := handler.NewAuthHandler(authService)
	requestHandler := handler.NewRequestHandler(workflowService, metricsService)
	registrationHandler := handler.NewRegistrationHandler(registrationService, metricsService)
	courseHandler := handler.NewCourseHandler(courseService)
	financialHandler := handler.NewFinancialHandler(financialService)
	gradeHandler := handler.NewGradeHandler(gradeService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsService))

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
		auth.POST("/forgot-password", authHandler.ForgotPassword)
		auth.POST("/reset-password", authHandler.ResetPassword)
	}

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authService))
	{
		secured.POST("/auth/logout", authHandler.Logout)
		secured.POST("/auth/change-password", authHandler.ChangePassword)

		secured.GET("/courses", courseHandler.List)
		secured.GET("/courses/:id", courseHandler.Get)
		secured.GET("/courses/:id/waitlist", registrationHandler.Waitlist)

		students := secured.Group("", internalmiddleware.RequireRoles(models.RoleStudent))
		{
			students.POST("/registrations", registrationHandler.Register)
			students.POST("/registrations/drop", registrationHandler.Drop)
			students.POST("/waitlists", registrationHandler.JoinWaitlist)
			students.POST("/waitlists/leave", registrationHandler.LeaveWaitlist)
			students.POST("/requests", requestHandler.Create)
			students.GET("/students/me/gpa", gradeHandler.GPA)
			students.GET("/financial/records", financialHandler.Statement)
			students.POST("/financial/payments", financialHandler.RecordPayment)
			students.POST("/financial/payment-plans", financialHandler.CreatePaymentPlan)
		}

		secured.GET("/requests", requestHandler.List)
		secured.GET("/requests/:id", requestHandler.Get)
		secured.GET("/requests/:id/workflow", requestHandler.Details)

		approvers := secured.Group("", internalmiddleware.RequireRoles(
			models.RoleAdvisor, models.RoleFaculty, models.RoleRegistrar, models.RoleBursar, models.RoleAdmin))
		{
			approvers.POST("/requests/:id/approve", requestHandler.Approve)
			approvers.POST("/requests/:id/reject", requestHandler.Reject)
		}

		staff := secured.Group("", internalmiddleware.RequireRoles(
			models.RoleFaculty, models.RoleRegistrar, models.RoleAdmin))
		{
			staff.POST("/enrollments/:id/grade", gradeHandler.PostGrade)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}

// buildWorkflowTemplates binds type-keyed approval sequences to the approver
// identities configured for this deployment.
func buildWorkflowTemplates(cfg config.RequestsConfig) service.WorkflowTemplates {
	advisor := service.StepTemplate{Name: "advisor-review", ApproverID: cfg.AdvisorID, Label: "Advisor Review"}
	chair := service.StepTemplate{Name: "department-chair-review", ApproverID: cfg.DepartmentChairID, Label: "Department Chair Review"}
	registrar := service.StepTemplate{Name: "registrar-review", ApproverID: cfg.RegistrarID, Label: "Registrar Review"}
	dean := service.StepTemplate{Name: "dean-review", ApproverID: cfg.DeanID, Label: "Dean Review"}

	return service.WorkflowTemplates{
		models.RequestTypeCourseWithdrawal: {advisor, registrar},
		models.RequestTypeGradeChange:      {chair, dean},
		models.RequestTypeRetakeExam:       {advisor, chair},
		models.RequestTypeLeaveOfAbsence:   {advisor, dean, registrar},
		models.RequestTypeProgramChange:    {advisor, chair, dean},
	}
}

func fallbackWorkflow(cfg config.RequestsConfig) []service.StepTemplate {
	return []service.StepTemplate{
		{Name: "advisor-review", ApproverID: cfg.AdvisorID, Label: "Advisor Review"},
		{Name: "department-chair-review", ApproverID: cfg.DepartmentChairID, Label: "Department Chair Review"},
	}
}
