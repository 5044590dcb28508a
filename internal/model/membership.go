package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Membership roles within a tenant
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Membership statuses. Only ACTIVE memberships count toward seat usage.
const (
	MembershipActive   = "ACTIVE"
	MembershipInactive = "INACTIVE"
)

// Membership represents the association between users and tenants
// This enables multi-tenancy by allowing users to belong to multiple tenants
type Membership struct {
	ID        string         `json:"id" gorm:"type:uuid;primaryKey"`
	UserID    string         `json:"user_id" gorm:"type:uuid;uniqueIndex:idx_memberships_user_tenant;not null"`
	TenantID  string         `json:"tenant_id" gorm:"type:uuid;uniqueIndex:idx_memberships_user_tenant;not null"`
	Role      string         `json:"role" gorm:"type:varchar(20);not null;default:'MEMBER'"`
	Status    string         `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	JoinedAt  time.Time      `json:"joined_at"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User   User   `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// BeforeCreate assigns a UUID primary key and the join timestamp
func (m *Membership) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	return nil
}
