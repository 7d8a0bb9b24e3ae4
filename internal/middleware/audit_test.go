package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-registration-api/internal/models"
)

type recordingAudit struct {
	logs []models.AuditLog
}

func (r *recordingAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	r.logs = append(r.logs, *log)
	return nil
}

func newAuditRouter(claims *models.JWTClaims, recorder AuditRecorder) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := r.Group("/", JWT(stubValidator{claims: claims}))
	auth.POST("/users/:id/enrollments", Audit(recorder, models.AuditActionAdmit, models.AuditResourceEnrollment), func(c *gin.Context) {
		SetAuditResource(c, "s9")
		c.Status(http.StatusCreated)
	})
	auth.DELETE("/users/:id/enrollments/:sectionId", Audit(recorder, models.AuditActionDrop, models.AuditResourceEnrollment), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	auth.PATCH("/sections/:id", Audit(recorder, models.AuditActionSectionUpdate, models.AuditResourceSection), func(c *gin.Context) {
		c.Status(http.StatusConflict)
	})
	return r
}

func TestAuditRecordsOnBehalfAdmission(t *testing.T) {
	recorder := &recordingAudit{}
	r := newAuditRouter(&models.JWTClaims{UserID: "reg", Role: models.RoleRegistrar}, recorder)

	w := call(r, http.MethodPost, "/users/u1/enrollments", "good")
	assert.Equal(t, http.StatusCreated, w.Code)

	require.Len(t, recorder.logs, 1)
	entry := recorder.logs[0]
	assert.Equal(t, models.AuditActionAdmit, entry.Action)
	assert.Equal(t, models.AuditResourceEnrollment, entry.Resource)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "reg", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "s9", *entry.ResourceID)

	var values map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.NewValues, &values))
	assert.Equal(t, true, values["on_behalf"])
	assert.Equal(t, "/users/:id/enrollments", values["path"])
	assert.Equal(t, map[string]interface{}{"id": "u1"}, values["params"])
}

func TestAuditSelfDropUsesSectionParam(t *testing.T) {
	recorder := &recordingAudit{}
	r := newAuditRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, recorder)

	w := call(r, http.MethodDelete, "/users/u1/enrollments/s2", "good")
	assert.Equal(t, http.StatusOK, w.Code)

	require.Len(t, recorder.logs, 1)
	require.NotNil(t, recorder.logs[0].ResourceID)
	assert.Equal(t, "s2", *recorder.logs[0].ResourceID)
	var values map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.logs[0].NewValues, &values))
	assert.Equal(t, false, values["on_behalf"])
}

func TestAuditSkipsFailedRequests(t *testing.T) {
	recorder := &recordingAudit{}
	r := newAuditRouter(&models.JWTClaims{UserID: "reg", Role: models.RoleRegistrar}, recorder)

	w := call(r, http.MethodPatch, "/sections/s1", "good")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, recorder.logs)

	w = call(r, http.MethodDelete, "/users/u1/enrollments/s2", "bad")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, recorder.logs)
}

func TestAuditWithoutRecorderIsNoop(t *testing.T) {
	r := newAuditRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleStudent}, nil)

	w := call(r, http.MethodDelete, "/users/u1/enrollments/s2", "good")
	assert.Equal(t, http.StatusOK, w.Code)
}
