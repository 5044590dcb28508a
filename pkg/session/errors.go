package session

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the client-side error taxonomy. Authentication,
// conflict, forbidden and invite errors are terminal; network failures are
// user-retryable and are returned wrapped, never retried automatically.
var (
	// ErrAuthenticationFailed is returned for bad credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConflict is returned when a signup collides with an existing
	// username or email. The backend does not say which.
	ErrConflict = errors.New("username or email already in use")

	// ErrForbidden is returned when acting on a tenant the user does not
	// belong to, or on a resource outside the active tenant.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned for missing tenants, entitlements or invites.
	ErrNotFound = errors.New("not found")

	// ErrInviteNotRedeemable is returned when an invite token is expired
	// or already used. Terminal.
	ErrInviteNotRedeemable = errors.New("invitation is no longer redeemable")

	// ErrSessionExpired is returned when a previously valid session gets a
	// 401. The store has already been cleared when callers see this.
	ErrSessionExpired = errors.New("session expired")

	// ErrProfileLoadFailed is returned when login obtained a token but the
	// profile load failed; the token has been rolled back.
	ErrProfileLoadFailed = errors.New("failed to load user profile")

	// ErrNotAuthenticated is returned when an operation needs a session
	// and none exists.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoActiveTenant is returned when a tenant-scoped operation runs
	// before any tenant was selected.
	ErrNoActiveTenant = errors.New("no active tenant selected")

	// ErrSeatLimitReached is returned when the seat limit blocks an invite.
	ErrSeatLimitReached = errors.New("seat limit reached")
)

// APIError carries a backend error payload that maps to no sentinel.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error: %d", e.StatusCode)
}
