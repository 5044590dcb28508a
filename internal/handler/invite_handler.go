package handler

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"kitly/internal/model"
	"kitly/pkg/database"
	"kitly/pkg/logger"
	"kitly/prometheus"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var inviteTTL = 72 * time.Hour

// SetInviteTTL configures how long invitations stay redeemable
func SetInviteTTL(ttl time.Duration) {
	if ttl > 0 {
		inviteTTL = ttl
	}
}

// CreateInvite issues a single-use invitation to join a tenant. Only the
// plain token is returned; the database keeps its SHA-256 hash.
func CreateInvite(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("invite")

	tenantID := c.Param("tenant_id")

	// Only OWNER or ADMIN may invite
	roles, _ := c.Get("roles").([]string)
	if !hasAnyRole(roles, model.RoleOwner, model.RoleAdmin) {
		log.Warn("Invite creation without sufficient role", zap.Strings("roles", roles))
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	// Parse request
	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse invite request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	// Invitations never grant OWNER
	req.Role = strings.ToUpper(req.Role)
	if req.Role != model.RoleAdmin && req.Role != model.RoleMember {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be ADMIN or MEMBER"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	// Reject if the email already belongs to a member of this tenant
	var existingUser model.User
	if result := database.GetDB().Where("email = ?", req.Email).First(&existingUser); result.Error == nil {
		var existingMembership model.Membership
		result := database.GetDB().
			Where("tenant_id = ? AND user_id = ?", tenantID, existingUser.ID).
			First(&existingMembership)
		if result.Error == nil {
			log.Warn("Invite for existing member rejected", zap.String("tenant_id", tenantID))
			return c.JSON(http.StatusConflict, echo.Map{"error": "user is already a member of this tenant"})
		}
	}

	// Reject duplicate pending invitations
	var pending model.Invitation
	result := database.GetDB().
		Where("tenant_id = ? AND email = ? AND status = ?", tenantID, req.Email, model.InvitePending).
		First(&pending)
	if result.Error == nil {
		log.Warn("Duplicate pending invite rejected", zap.String("tenant_id", tenantID))
		return c.JSON(http.StatusConflict, echo.Map{"error": "there is already a pending invitation for this email"})
	}

	// Generate a random 32-byte token; only its hash is stored
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		log.Error("Failed to generate invite token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "invite creation failed"})
	}
	token := base64.RawURLEncoding.EncodeToString(tokenBytes)

	invitedBy, _ := c.Get("user_id").(string)
	invitation := model.Invitation{
		TenantID:    tenantID,
		Email:       req.Email,
		Role:        req.Role,
		TokenHash:   hashInviteToken(token),
		Status:      model.InvitePending,
		InvitedByID: invitedBy,
		ExpiresAt:   time.Now().Add(inviteTTL),
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if result := database.GetDB().Create(&invitation); result.Error != nil {
		log.Error("Failed to create invitation", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "invite creation failed"})
	}

	log.Info("Invitation created",
		zap.String("tenant_id", tenantID),
		zap.String("invitation_id", invitation.ID),
		zap.String("role", invitation.Role))

	return c.JSON(http.StatusCreated, echo.Map{
		"id":         invitation.ID,
		"tenant_id":  invitation.TenantID,
		"email":      invitation.Email,
		"role":       invitation.Role,
		"token":      token,
		"expires_at": invitation.ExpiresAt,
	})
}

// ListPendingInvites returns a tenant's pending invitations
func ListPendingInvites(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("invite_list")

	tenantID := c.Param("tenant_id")

	roles, _ := c.Get("roles").([]string)
	if !hasAnyRole(roles, model.RoleOwner, model.RoleAdmin) {
		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var invitations []model.Invitation
	result := database.GetDB().
		Where("tenant_id = ? AND status = ?", tenantID, model.InvitePending).
		Order("created_at ASC").
		Find(&invitations)
	if result.Error != nil {
		log.Error("Failed to retrieve invitations", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to retrieve invitations"})
	}

	return c.JSON(http.StatusOK, invitations)
}

// AcceptInvite redeems an invitation token. The token is the credential; no
// session is required. Auto-provisions a user for the invited email when
// none exists, creates an ACTIVE membership, and marks the invitation
// ACCEPTED so the token cannot be reused.
func AcceptInvite(c echo.Context) error {
	log := logger.FromEcho(c)
	prometheus.RecordTenantOperation("accept_invite")

	// Parse request
	var req struct {
		Token    string `json:"token"`
		Username string `json:"username,omitempty"`
		Password string `json:"password,omitempty"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse accept invite request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var invitation model.Invitation
	result := database.GetDB().Where("token_hash = ?", hashInviteToken(req.Token)).First(&invitation)
	if result.Error != nil {
		log.Warn("Unknown invitation token presented")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "invalid invitation token"})
	}

	// A redeemed or expired invitation is terminally unusable
	if invitation.Status != model.InvitePending {
		log.Warn("Invitation no longer redeemable",
			zap.String("invitation_id", invitation.ID),
			zap.String("status", invitation.Status))
		return c.JSON(http.StatusGone, echo.Map{"error": "invitation has already been " + strings.ToLower(invitation.Status)})
	}

	if time.Now().After(invitation.ExpiresAt) {
		database.GetDB().Model(&invitation).Update("status", model.InviteExpired)
		log.Warn("Expired invitation presented", zap.String("invitation_id", invitation.ID))
		return c.JSON(http.StatusGone, echo.Map{"error": "invitation has expired"})
	}

	// Server-side seat limit check; the client-side gate is UX only
	var subscription model.Subscription
	result = database.GetDB().
		Where("tenant_id = ? AND status = ?", invitation.TenantID, model.SubscriptionActive).
		First(&subscription)
	if result.Error != nil {
		log.Error("No active subscription for tenant", zap.String("tenant_id", invitation.TenantID))
		return c.JSON(http.StatusConflict, echo.Map{"error": "no active subscription found"})
	}

	if subscription.SeatsQuantity > 0 {
		var activeSeats int64
		database.GetDB().Model(&model.Membership{}).
			Where("tenant_id = ? AND status = ?", invitation.TenantID, model.MembershipActive).
			Count(&activeSeats)
		if activeSeats >= subscription.SeatsQuantity {
			prometheus.SeatLimitRejections.Inc()
			log.Warn("Invite acceptance rejected by seat limit",
				zap.String("tenant_id", invitation.TenantID),
				zap.Int64("active_seats", activeSeats),
				zap.Int64("seats_quantity", subscription.SeatsQuantity))
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat limit reached, cannot accept invitation"})
		}
	}

	// Find or auto-provision the invited user
	var user model.User
	result = database.GetDB().Where("email = ?", invitation.Email).First(&user)
	if result.Error != nil {
		username := req.Username
		if username == "" {
			username = strings.SplitN(invitation.Email, "@", 2)[0] + "-" + uuid.NewString()[:8]
		}
		password := req.Password
		if password == "" {
			// Random placeholder; the user must reset it before logging in
			password = uuid.NewString()
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Error("Failed to hash password", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to accept invitation"})
		}
		user = model.User{
			Username: username,
			Email:    invitation.Email,
			Password: string(hashed),
			IsActive: true,
		}
		if result := database.GetDB().Create(&user); result.Error != nil {
			log.Error("Failed to provision invited user", zap.Error(result.Error))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to accept invitation"})
		}
	}

	// Reject double-join
	var existingMembership model.Membership
	result = database.GetDB().
		Where("tenant_id = ? AND user_id = ?", invitation.TenantID, user.ID).
		First(&existingMembership)
	if result.Error == nil {
		return c.JSON(http.StatusConflict, echo.Map{"error": "user is already a member of this tenant"})
	}

	tx := database.GetDB().Begin()
	if tx.Error != nil {
		log.Error("Failed to begin transaction", zap.Error(tx.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	membership := model.Membership{
		UserID:   user.ID,
		TenantID: invitation.TenantID,
		Role:     invitation.Role,
		Status:   model.MembershipActive,
	}

	if result := tx.Create(&membership); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to create membership", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to accept invitation"})
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      model.InviteAccepted,
		"accepted_at": &now,
	}
	if result := tx.Model(&invitation).Updates(updates); result.Error != nil {
		tx.Rollback()
		log.Error("Failed to mark invitation accepted", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to accept invitation"})
	}

	// Seat count changed
	if err := bumpEntitlementVersion(tx, invitation.TenantID); err != nil {
		tx.Rollback()
		log.Error("Failed to bump entitlement version", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to accept invitation"})
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Failed to commit transaction", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transaction commit failed"})
	}

	log.Info("Invitation accepted",
		zap.String("invitation_id", invitation.ID),
		zap.String("tenant_id", invitation.TenantID),
		zap.String("user_id", user.ID))

	return c.NoContent(http.StatusNoContent)
}

// hashInviteToken hashes the plain invite token for storage and lookup
func hashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
