package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/middleware"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/service"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
	"github.com/noah-isme/course-registration-api/pkg/response"
)

type admissionService interface {
	Admit(ctx context.Context, userID, sectionID string) (*models.AdmissionResult, error)
	Drop(ctx context.Context, userID, sectionID string) (*models.DropResult, error)
}

type registrationQueries interface {
	EnrollmentsForUser(ctx context.Context, userID, status string) ([]models.EnrollmentDetail, bool, error)
	EnrollmentsForSection(ctx context.Context, sectionID, status string) ([]models.EnrollmentDetail, bool, error)
	WaitlistForSection(ctx context.Context, sectionID string) ([]models.WaitlistEntryDetail, bool, error)
	WaitlistForCourse(ctx context.Context, courseID string) ([]models.WaitlistEntryDetail, bool, error)
	WaitlistForUser(ctx context.Context, userID string) ([]models.WaitlistEntryDetail, bool, error)
	SectionsForUser(ctx context.Context, userID, mode string) ([]models.SectionDetail, bool, error)
	AllEnrollments(ctx context.Context, status string) ([]models.EnrollmentDetail, error)
	AllWaitlist(ctx context.Context) ([]models.WaitlistEntryDetail, error)
}

type rosterExporter interface {
	SectionRoster(ctx context.Context, sectionID, format string) (*service.ExportResult, error)
}

// EnrollmentHandler exposes admission, drop and registration listings.
type EnrollmentHandler struct {
	admission admissionService
	queries   registrationQueries
	export    rosterExporter
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(admission admissionService, queries registrationQueries, export rosterExporter) *EnrollmentHandler {
	return &EnrollmentHandler{admission: admission, queries: queries, export: export}
}

// Admit godoc
// @Summary Register for a section
// @Description Seats the user when a seat is free, otherwise waitlists them
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param payload body models.AdmitRequest true "Section to join"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/{id}/enrollments [post]
func (h *EnrollmentHandler) Admit(c *gin.Context) {
	var req models.AdmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "section is required"))
		return
	}
	result, err := h.admission.Admit(c.Request.Context(), c.Param("id"), req.Section)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, result.Enrollment.SectionID)
	response.Created(c, result)
}

// Drop godoc
// @Summary Drop a section
// @Description Drops the active enrollment; a freed seat promotes the head of the waitlist
// @Tags Enrollments
// @Produce json
// @Param id path string true "User ID"
// @Param sectionId path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /users/{id}/enrollments/{sectionId} [delete]
// @Router /users/{id}/enrollments/{sectionId}/drop [post]
func (h *EnrollmentHandler) Drop(c *gin.Context) {
	result, err := h.admission.Drop(c.Request.Context(), c.Param("id"), c.Param("sectionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UserEnrollments godoc
// @Summary List a user's enrollments
// @Description Includes sections the user instructs
// @Tags Enrollments
// @Produce json
// @Param id path string true "User ID"
// @Param status query string false "enrolled (default), waitlisted, dropped, active, all"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/enrollments [get]
func (h *EnrollmentHandler) UserEnrollments(c *gin.Context) {
	data, hit, err := h.queries.EnrollmentsForUser(c.Request.Context(), c.Param("id"), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	cached(c, data, hit)
}

// UserSections godoc
// @Summary List a user's sections
// @Tags Enrollments
// @Produce json
// @Param id path string true "User ID"
// @Param mode query string false "enrolled, instructing, all (default)"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/sections [get]
func (h *EnrollmentHandler) UserSections(c *gin.Context) {
	data, hit, err := h.queries.SectionsForUser(c.Request.Context(), c.Param("id"), c.Query("mode"))
	if err != nil {
		response.Error(c, err)
		return
	}
	cached(c, data, hit)
}

// UserWaitlist godoc
// @Summary List a user's waitlist slots
// @Tags Enrollments
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/waitlist [get]
func (h *EnrollmentHandler) UserWaitlist(c *gin.Context) {
	data, hit, err := h.queries.WaitlistForUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	cached(c, data, hit)
}

// SectionEnrollments godoc
// @Summary List a section's enrollments
// @Tags Rosters
// @Produce json
// @Param id path string true "Section ID"
// @Param status query string false "enrolled (default), waitlisted, dropped, active, all"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/enrollments [get]
func (h *EnrollmentHandler) SectionEnrollments(c *gin.Context) {
	data, hit, err := h.queries.EnrollmentsForSection(c.Request.Context(), c.Param("id"), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	cached(c, data, hit)
}

// SectionWaitlist godoc
// @Summary List a section's waitlist
// @Tags Rosters
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{id}/waitlist [get]
func (h *EnrollmentHandler) SectionWaitlist(c *gin.Context) {
	data, hit, err := h.queries.WaitlistForSection(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	cached(c, data, hit)
}

// CourseWaitlist godoc
// @Summary List the waitlists of a course's sections
// @Tags Rosters
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/waitlist [get]
func (h *EnrollmentHandler) CourseWaitlist(c *gin.Context) {
	data, hit, err := h.queries.WaitlistForCourse(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	cached(c, data, hit)
}

// AllEnrollments godoc
// @Summary List enrollments across all sections
// @Tags Rosters
// @Produce json
// @Param status query string false "enrolled (default), waitlisted, dropped, active, all"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) AllEnrollments(c *gin.Context) {
	data, err := h.queries.AllEnrollments(c.Request.Context(), c.Query("status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	cached(c, data, false)
}

// AllWaitlist godoc
// @Summary List every section's waitlist
// @Tags Rosters
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /waitlist [get]
func (h *EnrollmentHandler) AllWaitlist(c *gin.Context) {
	data, err := h.queries.AllWaitlist(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	cached(c, data, false)
}

// SectionRoster godoc
// @Summary Download a section roster
// @Tags Rosters
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Section ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /sections/{id}/roster [get]
func (h *EnrollmentHandler) SectionRoster(c *gin.Context) {
	result, err := h.export.SectionRoster(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}
