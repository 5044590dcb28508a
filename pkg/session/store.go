package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Session is the client's authenticated, possibly tenant-scoped credential
// plus identity metadata. A Session with a non-empty ActiveTenantID holds a
// token scoped to that tenant only. Sessions are replaced as a whole, never
// mutated field by field, so readers can never observe a torn session.
type Session struct {
	Token              string
	UserID             string
	Username           string
	Email              string
	ActiveTenantID     string
	ActiveTenantName   string
	Roles              []string
	EntitlementVersion int64
	ExpiresAt          time.Time
}

// Store owns the single source of truth for who is logged in and under what
// token. All session writes go through its methods; nothing else touches
// the persisted token.
type Store struct {
	client *Client
	tokens TokenStore
	log    *zap.Logger

	mu      sync.RWMutex
	current *Session

	// refresh coalesces concurrent token refreshes into one request;
	// duplicate refreshes can race server-side and invalidate each other.
	refresh singleflight.Group

	// switchGen increments on every tenant switch and logout. In-flight
	// fetches compare generations to discard results that no longer belong
	// to the active tenant.
	switchGen atomic.Uint64

	// onExpired is invoked once when a 401 forces a logout.
	onExpired func()
	// onReset hooks let dependent caches wipe themselves on logout.
	onReset []func()
}

// NewStore creates a session store bound to a transport and token storage.
// A token already persisted from a previous run is picked up so the session
// survives restarts.
func NewStore(client *Client, tokens TokenStore, logger *zap.Logger, onExpired func()) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		client:    client,
		tokens:    tokens,
		log:       logger,
		onExpired: onExpired,
	}

	client.tokenFn = s.token
	client.onUnauthorized = s.handleUnauthorized

	if stored, err := tokens.Load(); err == nil && stored != "" {
		s.current = &Session{Token: stored}
		s.log.Debug("Restored persisted session token")
	}

	return s
}

// authResponse is the login/signup response shape
type authResponse struct {
	Token    string `json:"token"`
	Type     string `json:"type"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// userResponse is the /users/me response shape
type userResponse struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	IsActive bool     `json:"is_active"`
}

// Login authenticates and loads the user profile. If the profile load fails
// after a token was issued, the token is rolled back and the operation
// fails as a whole; a token must never stay persisted without its user.
func (s *Store) Login(ctx context.Context, identifier, password string) (Session, error) {
	var auth authResponse
	err := s.client.doJSON(ctx, http.MethodPost, "/auth/login", false, map[string]string{
		"username": identifier,
		"password": password,
	}, &auth)
	if err != nil {
		return Session{}, err
	}

	return s.establish(ctx, auth)
}

// Signup registers a new account and starts a session. A username or email
// collision surfaces as ErrConflict without naming the colliding field.
func (s *Store) Signup(ctx context.Context, username, email, password, firstName, lastName string) (Session, error) {
	var auth authResponse
	err := s.client.doJSON(ctx, http.MethodPost, "/auth/signup", false, map[string]string{
		"username":   username,
		"email":      email,
		"password":   password,
		"first_name": firstName,
		"last_name":  lastName,
	}, &auth)
	if err != nil {
		return Session{}, err
	}

	return s.establish(ctx, auth)
}

// establish persists the fresh token, loads the profile and installs the
// full session, rolling the token back on profile failure
func (s *Store) establish(ctx context.Context, auth authResponse) (Session, error) {
	s.replace(&Session{
		Token:    auth.Token,
		Username: auth.Username,
		Email:    auth.Email,
	})

	var user userResponse
	if err := s.client.doJSON(ctx, http.MethodGet, "/users/me", true, nil, &user); err != nil {
		s.clear()
		s.log.Error("Profile load failed after login, token rolled back", zap.Error(err))
		return Session{}, fmt.Errorf("%w: %v", ErrProfileLoadFailed, err)
	}

	sess := Session{
		Token:    auth.Token,
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
	}
	s.replace(&sess)

	s.log.Info("Session established", zap.String("username", user.Username))
	return sess, nil
}

// Logout clears the persisted token and in-memory session synchronously.
// It never performs a network call, so it succeeds even when offline.
// In-flight requests using the old token will 401 afterwards; those are
// treated as already logged out, not reported again.
func (s *Store) Logout() {
	s.clear()
	s.log.Info("Logged out")
}

// refreshResponse is the /sessions/refresh response shape
type refreshResponse struct {
	Token     string `json:"token"`
	Type      string `json:"type"`
	ExpiresIn int64  `json:"expires_in"`
}

// Refresh extends the token lifetime without re-authenticating. Concurrent
// callers are coalesced into a single network refresh and all receive the
// same result.
func (s *Store) Refresh(ctx context.Context) (Session, error) {
	result, err, _ := s.refresh.Do("refresh", func() (interface{}, error) {
		var resp refreshResponse
		if err := s.client.doJSON(ctx, http.MethodPost, "/sessions/refresh", true, nil, &resp); err != nil {
			return nil, err
		}

		s.mu.Lock()
		if s.current == nil {
			// Logged out while the refresh was in flight; drop the token.
			s.mu.Unlock()
			return nil, ErrNotAuthenticated
		}
		next := *s.current
		next.Token = resp.Token
		next.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		s.current = &next
		s.mu.Unlock()

		if err := s.tokens.Save(resp.Token); err != nil {
			s.log.Error("Failed to persist refreshed token", zap.Error(err))
		}

		s.log.Debug("Session refreshed")
		return next, nil
	})
	if err != nil {
		return Session{}, err
	}
	return result.(Session), nil
}

// SessionInfo is the backend's view of the session's tenant scope
type SessionInfo struct {
	UserID             string   `json:"user_id"`
	Username           string   `json:"username"`
	TenantID           string   `json:"tenant_id"`
	TenantName         string   `json:"tenant_name"`
	Roles              []string `json:"roles"`
	EntitlementVersion int64    `json:"entitlement_version"`
}

// Describe asks the backend what tenant scope the current token carries.
// Diagnostic only; the local session stays authoritative for the client.
func (s *Store) Describe(ctx context.Context) (SessionInfo, error) {
	var info SessionInfo
	if err := s.client.doJSON(ctx, http.MethodGet, "/sessions/current", true, nil, &info); err != nil {
		return SessionInfo{}, err
	}
	return info, nil
}

// Current returns a copy of the active session, or false when logged out
func (s *Store) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Session{}, false
	}
	return *s.current, true
}

// Generation returns the current switch generation. Fetch results carrying
// an older generation must be discarded, never cached.
func (s *Store) Generation() uint64 {
	return s.switchGen.Load()
}

// OnReset registers a hook run whenever the session is cleared
func (s *Store) OnReset(fn func()) {
	s.onReset = append(s.onReset, fn)
}

// token supplies the bearer token to the transport
func (s *Store) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return ""
	}
	return s.current.Token
}

// replace installs a full session value and persists its token. The whole
// value is written in one step; partial field updates are not allowed.
func (s *Store) replace(next *Session) {
	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	if err := s.tokens.Save(next.Token); err != nil {
		s.log.Error("Failed to persist session token", zap.Error(err))
	}
}

// replaceForSwitch installs a tenant-switched session and bumps the switch
// generation so stale in-flight fetches get discarded
func (s *Store) replaceForSwitch(next *Session) {
	s.replace(next)
	s.switchGen.Add(1)
}

// clear wipes the session, the persisted token and dependent caches
func (s *Store) clear() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	s.switchGen.Add(1)
	if err := s.tokens.Clear(); err != nil {
		s.log.Error("Failed to clear persisted token", zap.Error(err))
	}
	for _, fn := range s.onReset {
		fn()
	}
}

// handleUnauthorized is the central 401 interception point. A 401 with no
// current session means logout already happened; nothing to report.
func (s *Store) handleUnauthorized() {
	s.mu.RLock()
	loggedIn := s.current != nil
	s.mu.RUnlock()
	if !loggedIn {
		return
	}

	s.log.Warn("Session rejected by backend, forcing logout")
	s.clear()
	if s.onExpired != nil {
		s.onExpired()
	}
}
