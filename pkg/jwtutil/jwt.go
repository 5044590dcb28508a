package jwtutil

import (
	"time"

	"kitly/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	signingKey        []byte
	sessionExpiration = time.Hour
)

// Initialize configures the signing key and token lifetime
func Initialize(cfg *config.JWTConfig) {
	signingKey = []byte(cfg.SigningKey)
	if cfg.SessionExpiration > 0 {
		sessionExpiration = cfg.SessionExpiration
	}
}

// SessionClaims represents the JWT claims for a user session.
// TenantID is empty until the user selects a tenant; a token with a
// TenantID is scoped to that tenant only.
type SessionClaims struct {
	UserID             string   `json:"user_id"`
	Username           string   `json:"username"`
	TenantID           string   `json:"tenant_id,omitempty"`
	TenantName         string   `json:"tenant_name,omitempty"`
	Roles              []string `json:"roles,omitempty"`
	EntitlementVersion int64    `json:"entitlement_version,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a session token without tenant context
func GenerateToken(userID, username string) (string, error) {
	return GenerateTenantToken(userID, username, "", "", nil, 0)
}

// GenerateTenantToken creates a session token scoped to a tenant
func GenerateTenantToken(userID, username, tenantID, tenantName string, roles []string, entitlementVersion int64) (string, error) {
	claims := SessionClaims{
		UserID:             userID,
		Username:           username,
		TenantID:           tenantID,
		TenantName:         tenantName,
		Roles:              roles,
		EntitlementVersion: entitlementVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionExpiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

// SessionExpiration returns the configured token lifetime
func SessionExpiration() time.Duration {
	return sessionExpiration
}

// ValidateToken validates and parses the session token
func ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}
