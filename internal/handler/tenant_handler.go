package handler

import (
	"net/http"
	"strings"
	"time"

	"kitly/internal/model"
	"kitly/internal/plan"
	"kitly/pkg/database"
	"kitly/pkg/logger"
	"kitly/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// CreateTenant handles tenant creation. The creator becomes the OWNER and
// the tenant starts on the default plan.
func CreateTenant(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("create")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_tenant_creation")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	// Parse request
	var req struct {
		Name string `json:"name"`
		Slug string `json:"slug,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant creation request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Name == "" {
		log.Error("Invalid tenant data", zap.String("name", req.Name))
		prometheus.RecordAuthError("incomplete_tenant_creation")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	slug := req.Slug
	if slug == "" {
		slug = strings.ToLower(strings.ReplaceAll(req.Name, " ", "-")) + "-" + uuid.NewString()[:8]
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	// Begin transaction
	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	tenant := model.Tenant{
		Name:    req.Name,
		Slug:    slug,
		Status:  model.TenantActive,
		OwnerID: userID,
	}

	if result := tx.Create(&tenant); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create tenant", zap.Error(result.Error))
		prometheus.RecordAuthError("tenant_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	// The creator gets the single OWNER membership
	membership := model.Membership{
		UserID:   userID,
		TenantID: tenant.ID,
		Role:     model.RoleOwner,
		Status:   model.MembershipActive,
	}

	if result := tx.Create(&membership); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create owner membership", zap.Error(result.Error))
		prometheus.RecordAuthError("membership_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	// New tenants start on the default plan
	def, _ := plan.Get(plan.DefaultCode)
	subscription := model.Subscription{
		TenantID:      tenant.ID,
		PlanCode:      def.Code,
		Status:        model.SubscriptionActive,
		SeatsQuantity: def.Seats,
	}

	if result := tx.Create(&subscription); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create subscription", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	version := model.EntitlementVersion{
		TenantID: tenant.ID,
		Version:  1,
	}

	if result := tx.Create(&version); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create entitlement version", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "tenant creation failed"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transaction commit failed"})
	}

	log.Info("Tenant created",
		zap.String("name", tenant.Name),
		zap.String("id", tenant.ID),
		zap.String("owner_id", tenant.OwnerID))

	return c.JSON(http.StatusCreated, echo.Map{
		"id":     tenant.ID,
		"name":   tenant.Name,
		"slug":   tenant.Slug,
		"status": tenant.Status,
		"role":   model.RoleOwner,
	})
}

// ListMyTenants retrieves all tenants the authenticated user belongs to.
// Ordering is server-defined (join time) and stable within a session.
func ListMyTenants(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("list")

	userID, ok := c.Get("user_id").(string)
	if !ok {
		log.Error("Failed to get user ID from context")
		prometheus.RecordAuthError("unauthorized_tenant_listing")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var memberships []model.Membership
	result := database.GetDB().
		Preload("Tenant").
		Where("user_id = ? AND status = ?", userID, model.MembershipActive).
		Order("joined_at ASC").
		Find(&memberships)
	if result.Error != nil {
		log.Error("Failed to retrieve user's tenants", zap.Error(result.Error))
		prometheus.RecordAuthError("tenant_retrieval_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve tenants"})
	}

	// Format response
	type TenantSummary struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Slug   string `json:"slug"`
		Status string `json:"status"`
		Role   string `json:"role"`
	}

	response := make([]TenantSummary, 0, len(memberships))
	for _, m := range memberships {
		response = append(response, TenantSummary{
			ID:     m.TenantID,
			Name:   m.Tenant.Name,
			Slug:   m.Tenant.Slug,
			Status: m.Tenant.Status,
			Role:   m.Role,
		})
	}

	return c.JSON(http.StatusOK, response)
}
