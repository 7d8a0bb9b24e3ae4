package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/noah-isme/course-registration-api/internal/handler"
	"github.com/noah-isme/course-registration-api/internal/middleware"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/pkg/config"
)

type routeHandlers struct {
	auth       *handler.AuthHandler
	users      *handler.UserHandler
	catalog    *handler.CatalogHandler
	enrollment *handler.EnrollmentHandler
	metrics    *handler.MetricsHandler
	tokens     middleware.TokenValidator
	audit      middleware.AuditRecorder
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h routeHandlers) {
	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/login", h.auth.Login)

	secured := api.Group("")
	secured.Use(middleware.JWT(h.tokens))
	secured.GET("/me", h.auth.Me)

	directory := middleware.Require(middleware.CapDirectoryRead)
	registration := middleware.Require(middleware.CapRegistrationSelf, middleware.CapRegistrationAny)
	roster := middleware.Require(middleware.CapRosterRead)
	catalogWrite := middleware.Require(middleware.CapCatalogWrite)
	registrar := middleware.Require(middleware.CapRegistrationAny)
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(h.audit, action, resource)
	}
	admitAudit := audit(models.AuditActionAdmit, models.AuditResourceEnrollment)
	dropAudit := audit(models.AuditActionDrop, models.AuditResourceEnrollment)

	users := secured.Group("/users")
	users.GET("", directory, h.users.List)
	users.GET("/:id", directory, h.users.Get)
	users.GET("/:id/enrollments", registration, h.enrollment.UserEnrollments)
	users.POST("/:id/enrollments", registration, admitAudit, h.enrollment.Admit)
	users.DELETE("/:id/enrollments/:sectionId", registration, dropAudit, h.enrollment.Drop)
	users.POST("/:id/enrollments/:sectionId/drop", registration, dropAudit, h.enrollment.Drop)
	users.GET("/:id/sections", registration, h.enrollment.UserSections)
	users.GET("/:id/waitlist", registration, h.enrollment.UserWaitlist)

	secured.GET("/enrollments", registrar, h.enrollment.AllEnrollments)
	secured.GET("/waitlist", registrar, h.enrollment.AllWaitlist)
	secured.GET("/departments", directory, h.catalog.ListDepartments)

	courses := secured.Group("/courses")
	courses.GET("", directory, h.catalog.ListCourses)
	courses.POST("", catalogWrite, audit(models.AuditActionCourseCreate, models.AuditResourceCourse), h.catalog.CreateCourse)
	courses.GET("/:id", directory, h.catalog.GetCourse)
	courses.GET("/:id/sections", directory, h.catalog.CourseSections)
	courses.POST("/:id/sections", catalogWrite, audit(models.AuditActionSectionCreate, models.AuditResourceSection), h.catalog.CreateSection)
	courses.GET("/:id/waitlist", roster, h.enrollment.CourseWaitlist)

	sections := secured.Group("/sections")
	sections.GET("", directory, h.catalog.ListSections)
	sections.GET("/:id", directory, h.catalog.GetSection)
	sections.PATCH("/:id", catalogWrite, audit(models.AuditActionSectionUpdate, models.AuditResourceSection), h.catalog.UpdateSection)
	sections.GET("/:id/enrollments", roster, h.enrollment.SectionEnrollments)
	sections.GET("/:id/waitlist", roster, h.enrollment.SectionWaitlist)
	sections.GET("/:id/roster", roster, h.enrollment.SectionRoster)
}
