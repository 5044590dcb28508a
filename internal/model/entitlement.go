package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Entitlement item sources, in merge priority order
const (
	EntitlementSourcePlan     = "PLAN"
	EntitlementSourceOverride = "OVERRIDE"
)

// EntitlementOverride is a per-tenant feature/limit value that takes
// precedence over the plan catalog when enabled.
type EntitlementOverride struct {
	ID         string         `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID   string         `json:"tenant_id" gorm:"type:uuid;index;not null"`
	FeatureKey string         `json:"feature_key" gorm:"type:varchar(100);not null"`
	Value      string         `json:"value" gorm:"type:varchar(255);not null"`
	Enabled    bool           `json:"enabled" gorm:"default:true"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns a UUID primary key
func (e *EntitlementOverride) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// EntitlementVersion is a per-tenant change signal. It is bumped whenever
// the plan or the effective feature set changes; clients compare versions,
// they never do arithmetic on them.
type EntitlementVersion struct {
	ID        string    `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:uuid;uniqueIndex;not null"`
	Version   int64     `json:"version" gorm:"not null;default:1"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a UUID primary key
func (e *EntitlementVersion) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
