package main

import (
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/class-measures-api/api/swagger"
	"github.com/noah-isme/class-measures-api/internal/handler"
	"github.com/noah-isme/class-measures-api/internal/middleware"
	"github.com/noah-isme/class-measures-api/internal/models"
	"github.com/noah-isme/class-measures-api/pkg/config"
	"github.com/noah-isme/class-measures-api/pkg/logger"
	"github.com/noah-isme/class-measures-api/pkg/observability"
	corsmiddleware "github.com/noah-isme/class-measures-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/class-measures-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, a *app, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if observability.Enabled() {
		r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(corsmiddleware.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         cfg.CORS.MaxAge,
	}))
	r.Use(middleware.Metrics(a.metrics, "/metrics"))
	r.Use(middleware.ResponseMeta())

	health := handler.NewHealthHandler(a.metrics.Handler(), a.readiness)
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.ValidateIDs())
	registerRoutes(api, a, cfg, logr)
	return r
}

func registerRoutes(api *gin.RouterGroup, a *app, cfg *config.Config, logr *zap.Logger) {
	admin := string(models.RoleAdmin)
	tutor := string(models.RoleTutor)
	parent := string(models.RoleParent)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(a.auditLog, logr, action, resource)
	}

	authHandler := handler.NewAuthHandler(a.auth)
	authGroup := api.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.auth))

	secured.POST("/auth/logout", authHandler.Logout)
	secured.POST("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/auth/me", authHandler.Me)

	users := handler.NewUserHandler(a.users)
	secured.GET("/users", middleware.RBAC(admin), users.List)
	secured.GET("/users/:id", middleware.RBAC(admin, middleware.RoleSelf), users.Get)
	secured.POST("/users", middleware.RBAC(admin), users.Create)
	secured.PUT("/users/:id", middleware.RBAC(admin), users.Update)
	secured.DELETE("/users/:id", middleware.RBAC(admin), users.Delete)

	students := handler.NewStudentHandler(a.students)
	attendance := handler.NewAttendanceHandler(a.attendance)
	secured.GET("/students", middleware.RBAC(admin, tutor, parent), students.List)
	secured.GET("/students/:id", middleware.RBAC(admin, tutor, parent), students.Get)
	secured.POST("/students", middleware.RBAC(admin), audit(models.AuditActionCreate, "students"), students.Create)
	secured.PUT("/students/:id", middleware.RBAC(admin), audit(models.AuditActionUpdate, "students"), students.Update)
	secured.DELETE("/students/:id", middleware.RBAC(admin), audit(models.AuditActionDeactivate, "students"), students.Delete)

	programs := handler.NewProgramHandler(a.programs)
	secured.GET("/programs", middleware.RBAC(admin, tutor, parent), programs.List)
	secured.GET("/programs/:id", middleware.RBAC(admin, tutor, parent), programs.Get)
	secured.GET("/programs/:id/students", middleware.RBAC(admin, tutor), programs.Roster)
	secured.POST("/programs", middleware.RBAC(admin), audit(models.AuditActionCreate, "programs"), programs.Create)
	secured.PUT("/programs/:id", middleware.RBAC(admin), audit(models.AuditActionUpdate, "programs"), programs.Update)
	secured.DELETE("/programs/:id", middleware.RBAC(admin), audit(models.AuditActionDeactivate, "programs"), programs.Delete)
	secured.POST("/programs/:id/enroll", middleware.RBAC(admin), programs.Enroll)
	secured.DELETE("/programs/:id/students/:studentId", middleware.RBAC(admin), programs.Unenroll)

	resources := handler.NewResourceHandler(a.resources)
	secured.GET("/resources", middleware.RBAC(admin, tutor), resources.List)
	secured.GET("/resources/:id", middleware.RBAC(admin, tutor), resources.Get)
	secured.GET("/resources/:id/quote", middleware.RBAC(admin, tutor), resources.Quote)
	secured.POST("/resources", middleware.RBAC(admin), audit(models.AuditActionCreate, "resources"), resources.Create)
	secured.PUT("/resources/:id", middleware.RBAC(admin), audit(models.AuditActionUpdate, "resources"), resources.Update)
	secured.DELETE("/resources/:id", middleware.RBAC(admin), audit(models.AuditActionDeactivate, "resources"), resources.Delete)
	secured.POST("/resources/:id/adjust", middleware.RBAC(admin), resources.Adjust)

	sessions := handler.NewSessionHandler(a.sessions)
	staff := secured.Group("")
	staff.Use(middleware.RBAC(admin, tutor))
	staff.GET("/sessions", sessions.List)
	staff.GET("/sessions/:id", sessions.Get)
	staff.GET("/sessions/:id/metrics", sessions.Metrics)
	staff.POST("/sessions", audit(models.AuditActionCreate, "sessions"), sessions.Create)
	staff.PUT("/sessions/:id", audit(models.AuditActionUpdate, "sessions"), sessions.Update)
	staff.POST("/sessions/:id/status", sessions.ChangeStatus)
	staff.POST("/sessions/:id/reschedule", sessions.Reschedule)
	staff.DELETE("/sessions/:id", middleware.RBAC(admin), audit(models.AuditActionDeactivate, "sessions"), sessions.Delete)

	staff.POST("/attendance", attendance.Record)
	staff.GET("/attendance/session/:id", attendance.SessionAttendance)
	staff.GET("/attendance/reports", attendance.Report)
	secured.GET("/attendance/student/:id", middleware.RBAC(admin, tutor, parent), attendance.StudentHistory)

	if cfg.Analytics.Enabled {
		analytics := handler.NewAnalyticsHandler(a.analytics)
		analyticsGroup := secured.Group("/analytics")
		analyticsGroup.Use(middleware.RBAC(admin))
		analyticsGroup.GET("/overview", analytics.Overview)
		analyticsGroup.GET("/programs", analytics.Programs)
		analyticsGroup.GET("/system", analytics.System)
	}

	if a.reports != nil {
		reports := handler.NewReportHandler(a.reports)
		staff.POST("/reports", reports.Generate)
		staff.GET("/reports/:id", reports.Status)
		// The signed token authorises the download on its own.
		api.GET("/export/:token", reports.Download)
	}
}
