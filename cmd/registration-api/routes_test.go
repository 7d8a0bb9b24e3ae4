package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/course-registration-api/internal/handler"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/service"
	"github.com/noah-isme/course-registration-api/pkg/config"
	appErrors "github.com/noah-isme/course-registration-api/pkg/errors"
)

type staticTokens map[string]*models.JWTClaims

func (s staticTokens) ValidateToken(token string) (*models.JWTClaims, error) {
	claims, ok := s[token]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

type auditSink struct {
	logs []models.AuditLog
}

func (a *auditSink) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, *log)
	return nil
}

func newTestRouter(env string) *gin.Engine {
	return newAuditedRouter(env, nil)
}

func newAuditedRouter(env string, audit *auditSink) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := &config.Config{Env: env, APIPrefix: "/api/v1"}
	handlers := routeHandlers{
		auth:       handler.NewAuthHandler(nil),
		users:      handler.NewUserHandler(nil),
		catalog:    handler.NewCatalogHandler(nil),
		enrollment: handler.NewEnrollmentHandler(nil, nil, nil),
		metrics:    handler.NewMetricsHandler(service.NewMetricsService(), nil),
		tokens: staticTokens{
			"student":   {UserID: "u1", Role: models.RoleStudent},
			"registrar": {UserID: "reg", Role: models.RoleRegistrar},
		},
	}
	if audit != nil {
		handlers.audit = audit
	}
	registerRoutes(r, cfg, handlers)
	return r
}

func TestRegisterRoutesCoversRegistrationSurface(t *testing.T) {
	r := newTestRouter(config.EnvDevelopment)

	registered := map[string]bool{}
	for _, route := range r.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"POST /api/v1/login",
		"GET /api/v1/me",
		"GET /api/v1/users",
		"GET /api/v1/users/:id",
		"GET /api/v1/users/:id/enrollments",
		"POST /api/v1/users/:id/enrollments",
		"DELETE /api/v1/users/:id/enrollments/:sectionId",
		"POST /api/v1/users/:id/enrollments/:sectionId/drop",
		"GET /api/v1/users/:id/sections",
		"GET /api/v1/users/:id/waitlist",
		"GET /api/v1/enrollments",
		"GET /api/v1/waitlist",
		"GET /api/v1/departments",
		"GET /api/v1/courses",
		"POST /api/v1/courses",
		"GET /api/v1/courses/:id",
		"GET /api/v1/courses/:id/sections",
		"POST /api/v1/courses/:id/sections",
		"GET /api/v1/courses/:id/waitlist",
		"GET /api/v1/sections",
		"GET /api/v1/sections/:id",
		"PATCH /api/v1/sections/:id",
		"GET /api/v1/sections/:id/enrollments",
		"GET /api/v1/sections/:id/waitlist",
		"GET /api/v1/sections/:id/roster",
		"GET /health",
		"GET /ready",
		"GET /metrics",
		"GET /docs/*any",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestRegisterRoutesHidesDocsInProduction(t *testing.T) {
	r := newTestRouter(config.EnvProduction)
	for _, route := range r.Routes() {
		assert.NotEqual(t, "/docs/*any", route.Path)
	}
}

func TestRegisterRoutesGuardsBeforeHandlers(t *testing.T) {
	r := newTestRouter(config.EnvDevelopment)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/sections", "", http.StatusUnauthorized},
		{"student reads roster", http.MethodGet, "/api/v1/sections/s1/roster", "student", http.StatusForbidden},
		{"student registers someone else", http.MethodPost, "/api/v1/users/u2/enrollments", "student", http.StatusForbidden},
		{"student patches section", http.MethodPatch, "/api/v1/sections/s1", "student", http.StatusForbidden},
		{"student drops for another user", http.MethodDelete, "/api/v1/users/u2/enrollments/s1", "student", http.StatusForbidden},
		{"student lists all enrollments", http.MethodGet, "/api/v1/enrollments", "student", http.StatusForbidden},
		{"student lists all waitlist", http.MethodGet, "/api/v1/waitlist", "student", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRegisterRoutesSkipsAuditForRejectedWrites(t *testing.T) {
	audit := &auditSink{}
	r := newAuditedRouter(config.EnvDevelopment, audit)

	for _, path := range []string{"/api/v1/users/u2/enrollments", "/api/v1/courses"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("Authorization", "Bearer student")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	}
	assert.Empty(t, audit.logs)
}

func TestHealthRouteIsPublic(t *testing.T) {
	r := newTestRouter(config.EnvDevelopment)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
