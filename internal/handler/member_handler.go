package handler

import (
	"net/http"
	"time"

	"kitly/internal/model"
	"kitly/pkg/database"
	"kitly/pkg/logger"
	"kitly/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ListMembers retrieves the memberships of a tenant with user details
func ListMembers(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("members")

	tenantID := c.Param("tenant_id")

	defer prometheus.TrackDBOperation("query")(time.Now())

	var memberships []model.Membership
	result := database.GetDB().
		Preload("User").
		Where("tenant_id = ?", tenantID).
		Order("joined_at ASC").
		Find(&memberships)
	if result.Error != nil {
		log.Error("Failed to retrieve members", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve members"})
	}

	type MemberResponse struct {
		ID       string    `json:"id"`
		UserID   string    `json:"user_id"`
		TenantID string    `json:"tenant_id"`
		Username string    `json:"username"`
		Email    string    `json:"email"`
		Role     string    `json:"role"`
		Status   string    `json:"status"`
		JoinedAt time.Time `json:"joined_at"`
	}

	response := make([]MemberResponse, 0, len(memberships))
	for _, m := range memberships {
		response = append(response, MemberResponse{
			ID:       m.ID,
			UserID:   m.UserID,
			TenantID: m.TenantID,
			Username: m.User.Username,
			Email:    m.User.Email,
			Role:     m.Role,
			Status:   m.Status,
			JoinedAt: m.JoinedAt,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// UpdateMember changes a member's role or status. The OWNER membership is
// immutable through this endpoint; there is exactly one OWNER per tenant.
func UpdateMember(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("member_update")

	tenantID := c.Param("tenant_id")
	targetUserID := c.Param("user_id")

	// Only OWNER or ADMIN may edit members
	roles, _ := c.Get("roles").([]string)
	if !hasAnyRole(roles, model.RoleOwner, model.RoleAdmin) {
		log.Warn("Member update without sufficient role", zap.Strings("roles", roles))
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	// Parse request
	var req struct {
		Role   *string `json:"role,omitempty"`
		Status *string `json:"status,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse member update request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Role == nil && req.Status == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role or status is required"})
	}

	if req.Role != nil && *req.Role != model.RoleAdmin && *req.Role != model.RoleMember {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid role"})
	}

	if req.Status != nil && *req.Status != model.MembershipActive && *req.Status != model.MembershipInactive {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	var membership model.Membership
	result := database.GetDB().
		Where("tenant_id = ? AND user_id = ?", tenantID, targetUserID).
		First(&membership)
	if result.Error != nil {
		log.Error("Membership not found",
			zap.String("tenant_id", tenantID),
			zap.String("user_id", targetUserID))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "member not found"})
	}

	if membership.Role == model.RoleOwner {
		log.Warn("Attempt to modify OWNER membership",
			zap.String("tenant_id", tenantID),
			zap.String("user_id", targetUserID))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "the owner membership cannot be modified"})
	}

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	updates := map[string]interface{}{}
	if req.Role != nil {
		updates["role"] = *req.Role
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}

	if err := tx.Model(&membership).Updates(updates).Error; err != nil {
		tx.Rollback()
		log.Error("Failed to update membership", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update member"})
	}

	// Seat usage may have changed
	if err := bumpEntitlementVersion(tx, tenantID); err != nil {
		tx.Rollback()
		log.Error("Failed to bump entitlement version", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update member"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transaction commit failed"})
	}

	log.Info("Membership updated",
		zap.String("tenant_id", tenantID),
		zap.String("user_id", targetUserID),
		zap.String("role", membership.Role),
		zap.String("status", membership.Status))

	return c.JSON(http.StatusOK, membership)
}

// hasAnyRole reports whether any of the session roles matches the wanted set
func hasAnyRole(roles []string, wanted ...string) bool {
	for _, r := range roles {
		for _, w := range wanted {
			if r == w {
				return true
			}
		}
	}
	return false
}
