package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Invitation statuses
const (
	InvitePending  = "PENDING"
	InviteAccepted = "ACCEPTED"
	InviteExpired  = "EXPIRED"
)

// Invitation is a single-use, expiring grant to join a tenant with a role.
// Only the SHA-256 hash of the token is stored; the plain token travels in
// the invite email and is the sole credential for accepting.
type Invitation struct {
	ID          string         `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID    string         `json:"tenant_id" gorm:"type:uuid;index;not null"`
	Email       string         `json:"email" gorm:"type:varchar(100);index;not null"`
	Role        string         `json:"role" gorm:"type:varchar(20);not null"` // ADMIN or MEMBER, never OWNER
	TokenHash   string         `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Status      string         `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	InvitedByID string         `json:"invited_by_id" gorm:"type:uuid"`
	ExpiresAt   time.Time      `json:"expires_at"`
	AcceptedAt  *time.Time     `json:"accepted_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// BeforeCreate assigns a UUID primary key
func (i *Invitation) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
