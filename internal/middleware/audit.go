package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-registration-api/internal/models"
)

const auditResourceKey = "audit_resource_id"

// AuditRecorder persists audit log entries.
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// SetAuditResource overrides the resource id recorded for the request,
// for handlers that create the resource they act on.
func SetAuditResource(c *gin.Context, id string) {
	c.Set(auditResourceKey, id)
}

// Audit creates a middleware that records audit logs after successful requests.
func Audit(recorder AuditRecorder, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		var userID *string
		values := map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		}
		if claims := Claims(c); claims != nil {
			userID = &claims.UserID
			if target := c.Param("id"); target != "" && resource == models.AuditResourceEnrollment {
				values["on_behalf"] = target != claims.UserID
			}
		}
		if len(c.Params) > 0 {
			params := make(map[string]string, len(c.Params))
			for _, p := range c.Params {
				params[p.Key] = p.Value
			}
			values["params"] = params
		}
		body, _ := json.Marshal(values)

		_ = recorder.CreateAuditLog(c.Request.Context(), &models.AuditLog{
			UserID:     userID,
			Action:     action,
			Resource:   resource,
			ResourceID: auditResourceID(c),
			NewValues:  body,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.GetHeader("User-Agent"),
		})
	}
}

func auditResourceID(c *gin.Context) *string {
	if id := c.GetString(auditResourceKey); id != "" {
		return &id
	}
	for _, key := range []string{"sectionId", "id"} {
		if id := c.Param(key); id != "" {
			return &id
		}
	}
	return nil
}
