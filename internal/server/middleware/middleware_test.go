package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/skillmatrix/internal/auth"
	"github.com/gosuda/skillmatrix/internal/domain"
	"github.com/gosuda/skillmatrix/internal/server/middleware"
)

// ---------------------------------------------------------------------------
// Mock Authenticator
// ---------------------------------------------------------------------------

type mockAuthenticator struct {
	authenticateTokenFunc func(token string) (int64, string, error)
	validateAPIKeyFunc    func(ctx context.Context, rawKey string) (*domain.User, error)
}

func (m *mockAuthenticator) AuthenticateToken(token string) (int64, string, error) {
	if m.authenticateTokenFunc == nil {
		return 0, "", auth.ErrInvalidToken
	}
	return m.authenticateTokenFunc(token)
}

func (m *mockAuthenticator) ValidateAPIKey(ctx context.Context, rawKey string) (*domain.User, error) {
	if m.validateAPIKeyFunc == nil {
		return nil, auth.ErrInvalidAPIKey
	}
	return m.validateAPIKeyFunc(ctx, rawKey)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// contextHandler captures the identity injected by middleware.
type contextHandler struct {
	userID int64
	role   string
	called bool
}

func (h *contextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.userID, _ = middleware.UserIDFromContext(r.Context())
	h.role, _ = middleware.RoleFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func setUser(r *http.Request, userID int64) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), userID, middleware.RoleEmployee))
}

// ===========================================================================
// 1. Context helpers
// ===========================================================================

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()

	t.Run("present", func(t *testing.T) {
		t.Parallel()

		ctx := middleware.WithIdentity(t.Context(), 7, middleware.RoleAdmin)

		id, ok := middleware.UserIDFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, int64(7), id)

		role, ok := middleware.RoleFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, middleware.RoleAdmin, role)
	})

	t.Run("absent", func(t *testing.T) {
		t.Parallel()

		_, ok := middleware.UserIDFromContext(t.Context())
		assert.False(t, ok)
		_, ok = middleware.RoleFromContext(t.Context())
		assert.False(t, ok)
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()

		ctx := context.WithValue(t.Context(), middleware.ContextKeyUserID, "7")
		_, ok := middleware.UserIDFromContext(ctx)
		assert.False(t, ok)
	})
}

// ===========================================================================
// 2. RateLimit middleware
// ===========================================================================

func TestRateLimit_NoUserInContext_PassesThrough(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimit(t.Context(), 0.001, 1)(okHandler)

	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_BurstExceeded_Returns429(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimit(t.Context(), 0.001, 2)(okHandler)

	for i := range 2 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, setUser(httptest.NewRequest(http.MethodGet, "/", http.NoBody), 1))
		require.Equalf(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, setUser(httptest.NewRequest(http.MethodGet, "/", http.NoBody), 1))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestRateLimit_IndependentPerUser(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimit(t.Context(), 0.001, 1)(okHandler)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, setUser(httptest.NewRequest(http.MethodGet, "/", http.NoBody), 1))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, setUser(httptest.NewRequest(http.MethodGet, "/", http.NoBody), 1))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, setUser(httptest.NewRequest(http.MethodGet, "/", http.NoBody), 2))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitByIP(t *testing.T) {
	t.Parallel()

	handler := middleware.RateLimitByIP(t.Context(), 0.001, 1)(okHandler)

	newReq := func(ip string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", http.NoBody)
		r.RemoteAddr = ip
		return r
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq("10.0.0.1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newReq("10.0.0.2"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ===========================================================================
// 3. Auth middleware
// ===========================================================================

const testJWTSecret = "test-jwt-secret-for-middleware-tests"

func newService() *auth.Service {
	return auth.NewService(nil, nil, testJWTSecret, 15*time.Minute, time.Hour)
}

func TestAuth_JWT_ValidToken_PopulatesContext(t *testing.T) {
	t.Parallel()

	token, err := auth.IssueAccessToken(testJWTSecret, 42, middleware.RoleAdmin, 15*time.Minute)
	require.NoError(t, err)

	capture := &contextHandler{}
	handler := middleware.Auth(newService())(capture)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.True(t, capture.called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(42), capture.userID)
	assert.Equal(t, middleware.RoleAdmin, capture.role)
}

func TestAuth_JWT_Rejections(t *testing.T) {
	t.Parallel()

	expired, err := auth.IssueAccessToken(testJWTSecret, 1, middleware.RoleEmployee, -time.Minute)
	require.NoError(t, err)
	refresh, err := auth.IssueRefreshToken(testJWTSecret, 1, middleware.RoleEmployee, time.Hour)
	require.NoError(t, err)
	foreign, err := auth.IssueAccessToken("some-other-secret-entirely-here", 1, middleware.RoleEmployee, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "garbage", header: "Bearer totally.invalid.token"},
		{name: "expired", header: "Bearer " + expired},
		{name: "refresh token", header: "Bearer " + refresh},
		{name: "wrong secret", header: "Bearer " + foreign},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handler := middleware.Auth(newService())(okHandler)
			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAuth_BearerCaseInsensitive(t *testing.T) {
	t.Parallel()

	token, err := auth.IssueAccessToken(testJWTSecret, 3, middleware.RoleEmployee, time.Minute)
	require.NoError(t, err)

	for _, scheme := range []string{"Bearer ", "bearer ", "BEARER "} {
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("Authorization", scheme+token)
		rec := httptest.NewRecorder()

		middleware.Auth(newService())(okHandler).ServeHTTP(rec, req)

		assert.Equalf(t, http.StatusOK, rec.Code, "scheme %q", scheme)
	}
}

func TestAuth_QueryToken(t *testing.T) {
	t.Parallel()

	token, err := auth.IssueAccessToken(testJWTSecret, 5, middleware.RoleEmployee, time.Minute)
	require.NoError(t, err)

	capture := &contextHandler{}
	req := httptest.NewRequest(http.MethodGet, "/ws?access_token="+token, http.NoBody)
	rec := httptest.NewRecorder()

	middleware.Auth(newService())(capture).ServeHTTP(rec, req)

	require.True(t, capture.called)
	assert.Equal(t, int64(5), capture.userID)
}

func TestAuth_APIKey(t *testing.T) {
	t.Parallel()

	authn := &mockAuthenticator{
		validateAPIKeyFunc: func(_ context.Context, raw string) (*domain.User, error) {
			if raw == "skm_good" {
				return &domain.User{ID: 9, Role: domain.UserRoleEmployee}, nil
			}
			return nil, errors.New("nope")
		},
	}

	t.Run("valid key populates context", func(t *testing.T) {
		t.Parallel()

		capture := &contextHandler{}
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("X-API-Key", "skm_good")
		rec := httptest.NewRecorder()

		middleware.Auth(authn)(capture).ServeHTTP(rec, req)

		require.True(t, capture.called)
		assert.Equal(t, int64(9), capture.userID)
		assert.Equal(t, middleware.RoleEmployee, capture.role)
	})

	t.Run("invalid key returns 401", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("X-API-Key", "skm_bad")
		rec := httptest.NewRecorder()

		middleware.Auth(authn)(okHandler).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad bearer falls back to key", func(t *testing.T) {
		t.Parallel()

		capture := &contextHandler{}
		req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		req.Header.Set("Authorization", "Bearer junk")
		req.Header.Set("X-API-Key", "skm_good")
		rec := httptest.NewRecorder()

		middleware.Auth(authn)(capture).ServeHTTP(rec, req)

		assert.True(t, capture.called)
	})
}

func TestAuth_NoCredentials_Returns401(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	middleware.Auth(&mockAuthenticator{})(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing or invalid credentials")
}
