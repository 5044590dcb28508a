package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Member is one membership row of a tenant as the backend reports it
type Member struct {
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

// Invite is a pending invitation. Token is only populated in the
// CreateInvite response; the backend stores a hash and cannot return the
// plain token again.
type Invite struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Members manages a tenant's roster and invitations. Mutations invalidate
// the entitlement cache for the affected tenant, since active seat counts
// are derived from ACTIVE memberships.
type Members struct {
	client       *Client
	store        *Store
	entitlements *EntitlementCache
	log          *zap.Logger
}

// NewMembers creates the member/invite service
func NewMembers(client *Client, store *Store, entitlements *EntitlementCache, logger *zap.Logger) *Members {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Members{
		client:       client,
		store:        store,
		entitlements: entitlements,
		log:          logger,
	}
}

// List returns the tenant's members, owners first as the backend orders them
func (m *Members) List(ctx context.Context, tenantID string) ([]Member, error) {
	var members []Member
	err := m.client.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/tenants/%s/members", tenantID), true, nil, &members)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// MemberUpdate carries the changeable fields of a membership. Empty fields
// are left untouched by the backend.
type MemberUpdate struct {
	Role   string `json:"role,omitempty"`
	Status string `json:"status,omitempty"`
}

// Update changes a member's role or status. Requires OWNER or ADMIN; the
// backend refuses changes to OWNER rows. A status change alters the active
// seat count, so the tenant's entitlement entry is invalidated on success.
func (m *Members) Update(ctx context.Context, tenantID, userID string, update MemberUpdate) (Member, error) {
	var out Member
	err := m.client.doJSON(ctx, http.MethodPatch,
		fmt.Sprintf("/tenants/%s/members/%s", tenantID, userID), true, update, &out)
	if err != nil {
		return Member{}, err
	}
	m.entitlements.Invalidate(tenantID)
	return out, nil
}

// InviteRequest is the payload for creating an invitation
type InviteRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// CreateInvite issues an invitation for the tenant. The returned Invite
// carries the plain token exactly once; callers deliver it out of band.
func (m *Members) CreateInvite(ctx context.Context, tenantID string, req InviteRequest) (Invite, error) {
	var out Invite
	err := m.client.doJSON(ctx, http.MethodPost,
		fmt.Sprintf("/tenants/%s/invites", tenantID), true, req, &out)
	if err != nil {
		return Invite{}, err
	}
	m.log.Info("Invitation created",
		zap.String("tenant_id", tenantID),
		zap.String("role", out.Role))
	return out, nil
}

// ListPendingInvites returns the tenant's PENDING invitations
func (m *Members) ListPendingInvites(ctx context.Context, tenantID string) ([]Invite, error) {
	var invites []Invite
	err := m.client.doJSON(ctx, http.MethodGet,
		fmt.Sprintf("/tenants/%s/invites", tenantID), true, nil, &invites)
	if err != nil {
		return nil, err
	}
	return invites, nil
}

// AcceptInviteRequest redeems an invitation token. Password is only needed
// when the invited email has no account yet; the backend provisions one.
type AcceptInviteRequest struct {
	Token    string `json:"token"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// AcceptInvite redeems an invitation. It is unauthenticated: the token is
// the credential. A consumed, expired or revoked token fails terminally
// with ErrInviteNotRedeemable; a full tenant fails with ErrConflict. The
// caller does not know which tenant the token belongs to, so every cached
// entitlement entry is invalidated on success.
func (m *Members) AcceptInvite(ctx context.Context, req AcceptInviteRequest) error {
	err := m.client.doJSON(ctx, http.MethodPost, "/invites/accept", false, req, nil)
	if err != nil {
		return err
	}
	m.entitlements.InvalidateAll()
	return nil
}
