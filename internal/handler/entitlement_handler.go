package handler

import (
	"net/http"
	"time"

	"kitly/internal/model"
	"kitly/internal/plan"
	"kitly/pkg/database"
	"kitly/pkg/logger"
	"kitly/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GetEntitlements computes the entitlement snapshot for a tenant by merging
// the plan catalog with enabled per-tenant overrides. The active seat count
// is derived by counting ACTIVE memberships at request time, never cached.
func GetEntitlements(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("entitlements")

	tenantID := c.Param("tenant_id")

	defer prometheus.TrackDBOperation("query")(time.Now())

	var subscription model.Subscription
	result := database.GetDB().
		Where("tenant_id = ? AND status = ?", tenantID, model.SubscriptionActive).
		First(&subscription)
	if result.Error != nil {
		log.Error("No active subscription for tenant", zap.String("tenant_id", tenantID))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no active subscription found"})
	}

	def, ok := plan.Get(subscription.PlanCode)
	if !ok {
		log.Error("Unknown plan code", zap.String("plan_code", subscription.PlanCode))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "invalid plan configuration"})
	}

	type Item struct {
		Key    string `json:"key"`
		Value  string `json:"value"`
		Source string `json:"source"`
	}

	// Start with plan entitlements in stable key order
	merged := make(map[string]Item, len(def.Entitlements))
	order := def.Keys()
	for _, key := range order {
		merged[key] = Item{Key: key, Value: def.Entitlements[key], Source: model.EntitlementSourcePlan}
	}

	// Apply enabled overrides; new keys append after the plan's
	var overrides []model.EntitlementOverride
	database.GetDB().
		Where("tenant_id = ? AND enabled = ?", tenantID, true).
		Order("feature_key ASC").
		Find(&overrides)
	for _, o := range overrides {
		if _, exists := merged[o.FeatureKey]; !exists {
			order = append(order, o.FeatureKey)
		}
		merged[o.FeatureKey] = Item{Key: o.FeatureKey, Value: o.Value, Source: model.EntitlementSourceOverride}
	}

	items := make([]Item, 0, len(order))
	for _, key := range order {
		items = append(items, merged[key])
	}

	// Count active seats
	var activeSeats int64
	database.GetDB().Model(&model.Membership{}).
		Where("tenant_id = ? AND status = ?", tenantID, model.MembershipActive).
		Count(&activeSeats)

	return c.JSON(http.StatusOK, echo.Map{
		"tenant_id":           tenantID,
		"plan_code":           subscription.PlanCode,
		"status":              subscription.Status,
		"seats_quantity":      subscription.SeatsQuantity,
		"active_seats":        activeSeats,
		"entitlement_version": currentEntitlementVersion(tenantID),
		"items":               items,
	})
}

// currentEntitlementVersion returns the tenant's entitlement version,
// defaulting to 1 when the row does not exist yet
func currentEntitlementVersion(tenantID string) int64 {
	var version model.EntitlementVersion
	result := database.GetDB().Where("tenant_id = ?", tenantID).First(&version)
	if result.Error != nil {
		return 1
	}
	return version.Version
}

// bumpEntitlementVersion increments the tenant's entitlement version inside
// the caller's transaction. Called after any membership or plan mutation.
func bumpEntitlementVersion(tx *gorm.DB, tenantID string) error {
	var version model.EntitlementVersion
	result := tx.Where("tenant_id = ?", tenantID).First(&version)
	if result.Error != nil {
		version = model.EntitlementVersion{TenantID: tenantID, Version: 2}
		return tx.Create(&version).Error
	}
	return tx.Model(&version).Update("version", version.Version+1).Error
}
