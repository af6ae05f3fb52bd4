package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gosuda/skillmatrix/internal/server/middleware"
)

// setRole injects a role into the request context using the same context key
// that the Auth middleware uses.
func setRole(r *http.Request, role string) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.ContextKeyUserRole, role)
	return r.WithContext(ctx)
}

// okHandler is a simple handler that writes 200 OK.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRequireRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		allowed  []string
		role     *string // nil = no role in context
		wantCode int
	}{
		{name: "admin on admin route", allowed: []string{middleware.RoleAdmin}, role: ptr(middleware.RoleAdmin), wantCode: http.StatusOK},
		{name: "employee on admin route", allowed: []string{middleware.RoleAdmin}, role: ptr(middleware.RoleEmployee), wantCode: http.StatusForbidden},
		{name: "employee on shared route", allowed: []string{middleware.RoleAdmin, middleware.RoleEmployee}, role: ptr(middleware.RoleEmployee), wantCode: http.StatusOK},
		{name: "unknown role", allowed: []string{middleware.RoleAdmin, middleware.RoleEmployee}, role: ptr("viewer"), wantCode: http.StatusForbidden},
		{name: "empty role", allowed: []string{middleware.RoleAdmin}, role: ptr(""), wantCode: http.StatusUnauthorized},
		{name: "no role", allowed: []string{middleware.RoleAdmin}, wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.role != nil {
				req = setRole(req, *tt.role)
			}
			rec := httptest.NewRecorder()

			middleware.RequireRole(tt.allowed...)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestRequireAdmin_ConvenienceWrapper(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	middleware.RequireAdmin()(okHandler).ServeHTTP(rec, setRole(httptest.NewRequest(http.MethodGet, "/", http.NoBody), middleware.RoleAdmin))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	middleware.RequireAdmin()(okHandler).ServeHTTP(rec, setRole(httptest.NewRequest(http.MethodGet, "/", http.NoBody), middleware.RoleEmployee))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient permissions")
}

func ptr(s string) *string { return &s }
