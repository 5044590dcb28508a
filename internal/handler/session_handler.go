package handler

import (
	"net/http"
	"time"

	"kitly/internal/model"
	"kitly/pkg/database"
	"kitly/pkg/jwtutil"
	"kitly/pkg/logger"
	"kitly/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SwitchTenant reissues the session token scoped to a different tenant.
// The caller must hold an ACTIVE membership in the target tenant and the
// tenant itself must be ACTIVE.
func SwitchTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.TenantSwitchCounter.Inc()

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_tenant_switch")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	username, _ := c.Get("username").(string)

	// Parse request
	var req struct {
		TenantID string `json:"tenant_id"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant switch request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.TenantID == "" {
		log.Error("Missing tenant ID in switch request")
		prometheus.RecordAuthError("invalid_tenant_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	// Verify the user holds an active membership in the target tenant
	var membership model.Membership
	result := database.GetDB().
		Where("user_id = ? AND tenant_id = ? AND status = ?", userID, req.TenantID, model.MembershipActive).
		First(&membership)
	if result.Error != nil {
		log.Warn("Unauthorized tenant switch attempt",
			zap.String("user_id", userID),
			zap.String("tenant_id", req.TenantID))
		prometheus.RecordAuthError("tenant_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to requested tenant"})
	}

	// The tenant itself must be active
	var tenant model.Tenant
	if result := database.GetDB().First(&tenant, "id = ?", req.TenantID); result.Error != nil {
		log.Error("Tenant not found", zap.String("tenant_id", req.TenantID))
		prometheus.RecordAuthError("tenant_not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}
	if tenant.Status != model.TenantActive {
		log.Warn("Switch to inactive tenant rejected",
			zap.String("tenant_id", tenant.ID),
			zap.String("status", tenant.Status))
		prometheus.RecordAuthError("tenant_inactive")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "tenant is not active"})
	}

	entVersion := currentEntitlementVersion(req.TenantID)
	roles := []string{membership.Role}

	// Generate new tenant-scoped token
	token, err := jwtutil.GenerateTenantToken(userID, username, tenant.ID, tenant.Name, roles, entVersion)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()

	log.Info("User switched tenant",
		zap.String("user_id", userID),
		zap.String("tenant_id", tenant.ID),
		zap.String("role", membership.Role))

	return c.JSON(http.StatusOK, echo.Map{
		"token":               token,
		"type":                "Bearer",
		"user_id":             userID,
		"tenant_id":           tenant.ID,
		"tenant_name":         tenant.Name,
		"roles":               roles,
		"entitlement_version": entVersion,
		"expires_in":          int64(jwtutil.SessionExpiration().Seconds()),
	})
}

// RefreshSession extends the session token lifetime, keeping its tenant
// scope and picking up the latest entitlement version
func RefreshSession(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.SessionRefreshCounter.Inc()

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_refresh")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	username, _ := c.Get("username").(string)
	tenantID, _ := c.Get("tenant_id").(string)
	tenantName, _ := c.Get("tenant_name").(string)
	roles, _ := c.Get("roles").([]string)

	var entVersion int64
	if tenantID != "" {
		// Re-validate the membership before extending a tenant-scoped token
		defer prometheus.TrackDBOperation("query")(time.Now())
		var membership model.Membership
		result := database.GetDB().
			Where("user_id = ? AND tenant_id = ? AND status = ?", userID, tenantID, model.MembershipActive).
			First(&membership)
		if result.Error != nil {
			log.Warn("Refresh rejected, membership no longer active",
				zap.String("user_id", userID),
				zap.String("tenant_id", tenantID))
			prometheus.RecordAuthError("membership_inactive")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "membership is no longer active"})
		}
		entVersion = currentEntitlementVersion(tenantID)
	}

	token, err := jwtutil.GenerateTenantToken(userID, username, tenantID, tenantName, roles, entVersion)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("Session refreshed", zap.String("user_id", userID), zap.String("tenant_id", tenantID))

	return c.JSON(http.StatusOK, echo.Map{
		"token":      token,
		"type":       "Bearer",
		"expires_in": int64(jwtutil.SessionExpiration().Seconds()),
	})
}

// GetCurrentSession reports the session's tenant scope and entitlement version
func GetCurrentSession(c echo.Context) error {
	log := logger.FromEcho(c)

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_session_access")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	username, _ := c.Get("username").(string)
	tenantID, _ := c.Get("tenant_id").(string)
	tenantName, _ := c.Get("tenant_name").(string)
	roles, _ := c.Get("roles").([]string)
	entVersion, _ := c.Get("entitlement_version").(int64)

	return c.JSON(http.StatusOK, echo.Map{
		"user_id":             userID,
		"username":            username,
		"tenant_id":           tenantID,
		"tenant_name":         tenantName,
		"roles":               roles,
		"entitlement_version": entVersion,
	})
}
