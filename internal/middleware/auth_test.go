package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kitly/pkg/config"
	"kitly/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	jwtutil.Initialize(&config.JWTConfig{
		SigningKey:        "test-signing-key",
		SessionExpiration: time.Hour,
	})
}

func invoke(t *testing.T, mw echo.MiddlewareFunc, req *http.Request, setup func(echo.Context)) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	require.NoError(t, handler(c))
	return rec, c
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	rec, _ := invoke(t, AuthMiddleware, req, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareMalformedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Token abc")
	rec, _ := invoke(t, AuthMiddleware, req, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec, _ := invoke(t, AuthMiddleware, req, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddlewareSetsSessionContext(t *testing.T) {
	token, err := jwtutil.GenerateToken("user-1", "alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, c := invoke(t, AuthMiddleware, req, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", c.Get("user_id"))
	assert.Equal(t, "alice", c.Get("username"))
	assert.Nil(t, c.Get("tenant_id"), "a tenantless token carries no tenant scope")
}

func TestAuthMiddlewareSetsTenantContext(t *testing.T) {
	token, err := jwtutil.GenerateTenantToken("user-1", "alice", "tenant-1", "Acme", []string{"OWNER"}, 3)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/tenants/tenant-1/members", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec, c := invoke(t, AuthMiddleware, req, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tenant-1", c.Get("tenant_id"))
	assert.Equal(t, "Acme", c.Get("tenant_name"))
	assert.Equal(t, []string{"OWNER"}, c.Get("roles"))
	assert.Equal(t, int64(3), c.Get("entitlement_version"))
}

func TestRequireTenantContextWithoutScope(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tenants/tenant-1/members", nil)
	rec, _ := invoke(t, RequireTenantContext, req, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireTenantContextCrossTenant(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tenants/tenant-2/members", nil)
	rec, _ := invoke(t, RequireTenantContext, req, func(c echo.Context) {
		c.Set("tenant_id", "tenant-1")
		c.SetParamNames("tenant_id")
		c.SetParamValues("tenant-2")
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireTenantContextMatch(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/tenants/tenant-1/members", nil)
	rec, _ := invoke(t, RequireTenantContext, req, func(c echo.Context) {
		c.Set("tenant_id", "tenant-1")
		c.SetParamNames("tenant_id")
		c.SetParamValues("tenant-1")
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
