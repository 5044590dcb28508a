package middleware

import (
	"net/http"
	"strings"

	"kitly/pkg/jwtutil"
	"kitly/pkg/logger"
	"kitly/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthMiddleware validates the JWT token from the Authorization header
func AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromEcho(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Error("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
		}

		// Validate the token
		claims, err := jwtutil.ValidateToken(parts[1])
		if err != nil {
			log.Error("Invalid JWT token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		}

		// Store session info in context for later use
		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Set("token", parts[1])

		// Store tenant scope if the token carries one
		if claims.TenantID != "" {
			c.Set("tenant_id", claims.TenantID)
			c.Set("tenant_name", claims.TenantName)
			c.Set("roles", claims.Roles)
			c.Set("entitlement_version", claims.EntitlementVersion)

			log.Debug("Request authenticated with tenant context",
				zap.String("tenant_id", claims.TenantID),
				zap.Strings("roles", claims.Roles))
		}

		return next(c)
	}
}

// RequireTenantContext ensures the token is scoped to the tenant named in
// the request path. A token scoped to tenant A must never act on tenant B.
func RequireTenantContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromEcho(c)

		tokenTenantID, ok := c.Get("tenant_id").(string)
		if !ok || tokenTenantID == "" {
			log.Warn("Tenant-scoped route called without tenant context")
			prometheus.RecordAuthError("missing_tenant_context")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "no active tenant in session"})
		}

		pathTenantID := c.Param("tenant_id")
		if pathTenantID != "" && pathTenantID != tokenTenantID {
			log.Warn("Cross-tenant access attempt",
				zap.String("token_tenant_id", tokenTenantID),
				zap.String("path_tenant_id", pathTenantID))
			prometheus.RecordAuthError("tenant_access_denied")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to requested tenant"})
		}

		return next(c)
	}
}
