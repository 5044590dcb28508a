package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// fakeUser is an account known to the fake backend
type fakeUser struct {
	ID       string
	Username string
	Email    string
	Password string
	Roles    []string
}

// fakeTenant is a tenant with its membership roster and entitlements
type fakeTenant struct {
	ID            string
	Name          string
	Slug          string
	Status        string
	Members       map[string]string // userID -> role
	PlanCode      string
	SeatsQuantity int64
	Version       int64
	Items         []EntitlementItem
}

// fakeInvite is a pending invitation held by token
type fakeInvite struct {
	TenantID string
	Email    string
	Role     string
	Status   string
}

// fakeBackend is an in-memory stand-in for the real API. It issues opaque
// tokens, scopes them per tenant on switch, and enforces the same status
// codes the real handlers return.
type fakeBackend struct {
	srv *httptest.Server

	mu              sync.Mutex
	users           map[string]*fakeUser   // by username
	tokens          map[string]*tokenScope // token -> scope
	tenants         map[string]*fakeTenant // by tenant ID
	invites         map[string]*fakeInvite // by plain token
	tokenSeq        int
	refreshes       int
	entitlementHits map[string]int

	// entitlementGate, when set, is called before serving an entitlement
	// response so tests can stall a specific tenant's fetch.
	entitlementGate func(tenantID string)
}

type tokenScope struct {
	UserID   string
	TenantID string
}

func newFakeBackend() *fakeBackend {
	b := &fakeBackend{
		users:           make(map[string]*fakeUser),
		tokens:          make(map[string]*tokenScope),
		tenants:         make(map[string]*fakeTenant),
		invites:         make(map[string]*fakeInvite),
		entitlementHits: make(map[string]int),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.route))
	return b
}

func (b *fakeBackend) Close() { b.srv.Close() }

func (b *fakeBackend) URL() string { return b.srv.URL }

func (b *fakeBackend) addUser(id, username, email, password string) *fakeUser {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := &fakeUser{ID: id, Username: username, Email: email, Password: password, Roles: []string{"user"}}
	b.users[username] = u
	return u
}

func (b *fakeBackend) addTenant(t *fakeTenant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t.Status == "" {
		t.Status = "ACTIVE"
	}
	if t.Version == 0 {
		t.Version = 1
	}
	b.tenants[t.ID] = t
}

func (b *fakeBackend) addInvite(token, tenantID, email, role string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invites[token] = &fakeInvite{TenantID: tenantID, Email: email, Role: role, Status: "PENDING"}
}

// revokeAllTokens makes every outstanding token invalid, simulating a
// server-side session invalidation.
func (b *fakeBackend) revokeAllTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]*tokenScope)
}

func (b *fakeBackend) refreshCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshes
}

func (b *fakeBackend) entitlementHitCount(tenantID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entitlementHits[tenantID]
}

// activeSeats counts ACTIVE-equivalent members; the fake roster has no
// INACTIVE rows, deactivation removes the entry.
func (t *fakeTenant) activeSeats() int64 {
	return int64(len(t.Members))
}

func (b *fakeBackend) issueToken(userID, tenantID string) string {
	b.tokenSeq++
	tok := fmt.Sprintf("tok-%d", b.tokenSeq)
	b.tokens[tok] = &tokenScope{UserID: userID, TenantID: tenantID}
	return tok
}

func (b *fakeBackend) authenticate(r *http.Request) *tokenScope {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return nil
	}
	return b.tokens[strings.TrimPrefix(h, "Bearer ")]
}

func (b *fakeBackend) userByID(id string) *fakeUser {
	for _, u := range b.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (b *fakeBackend) route(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/auth/login":
		b.handleLogin(w, r)
	case r.Method == http.MethodGet && path == "/users/me":
		b.handleMe(w, r)
	case r.Method == http.MethodGet && path == "/me/tenants":
		b.handleMyTenants(w, r)
	case r.Method == http.MethodPost && path == "/sessions/switch-tenant":
		b.handleSwitch(w, r)
	case r.Method == http.MethodPost && path == "/sessions/refresh":
		b.handleRefresh(w, r)
	case r.Method == http.MethodGet && path == "/sessions/current":
		b.handleCurrentSession(w, r)
	case r.Method == http.MethodPost && path == "/invites/accept":
		b.handleAcceptInvite(w, r)
	case r.Method == http.MethodPost && path == "/tenants":
		b.handleCreateTenant(w, r)
	case strings.HasPrefix(path, "/tenants/") && strings.HasSuffix(path, "/invites"):
		b.handleTenantInvites(w, r)
	case strings.HasPrefix(path, "/tenants/") && strings.HasSuffix(path, "/entitlements"):
		b.handleEntitlements(w, r)
	case strings.HasPrefix(path, "/tenants/") && strings.Contains(path, "/members/"):
		b.handleUpdateMember(w, r)
	case strings.HasPrefix(path, "/tenants/") && strings.HasSuffix(path, "/members"):
		b.handleListMembers(w, r)
	default:
		writeErr(w, http.StatusNotFound, "not found")
	}
}

func (b *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[req.Username]
	if !ok || u.Password != req.Password {
		writeErr(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	tok := b.issueToken(u.ID, "")
	writeJSON(w, http.StatusOK, map[string]string{
		"token":    tok,
		"type":     "Bearer",
		"username": u.Username,
		"email":    u.Email,
	})
}

func (b *fakeBackend) handleMe(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	u := b.userByID(scope.UserID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        u.ID,
		"username":  u.Username,
		"email":     u.Email,
		"roles":     u.Roles,
		"is_active": true,
	})
}

func (b *fakeBackend) handleMyTenants(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	out := []map[string]string{}
	for _, t := range b.tenants {
		if role, ok := t.Members[scope.UserID]; ok {
			out = append(out, map[string]string{
				"id":     t.ID,
				"name":   t.Name,
				"slug":   t.Slug,
				"status": t.Status,
				"role":   role,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *fakeBackend) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	t, ok := b.tenants[req.TenantID]
	if !ok {
		writeErr(w, http.StatusNotFound, "tenant not found")
		return
	}
	role, member := t.Members[scope.UserID]
	if !member || t.Status != "ACTIVE" {
		writeErr(w, http.StatusForbidden, "not an active member of this tenant")
		return
	}
	tok := b.issueToken(scope.UserID, t.ID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":               tok,
		"user_id":             scope.UserID,
		"tenant_id":           t.ID,
		"tenant_name":         t.Name,
		"roles":               []string{role},
		"entitlement_version": t.Version,
		"expires_in":          int64(3600),
	})
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	b.refreshes++
	// Simulate refresh latency so concurrent callers truly overlap.
	b.mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	b.mu.Lock()
	tok := b.issueToken(scope.UserID, scope.TenantID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      tok,
		"type":       "Bearer",
		"expires_in": int64(3600),
	})
}

func (b *fakeBackend) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	u := b.userByID(scope.UserID)
	resp := map[string]interface{}{
		"user_id":  scope.UserID,
		"username": u.Username,
	}
	if scope.TenantID != "" {
		t := b.tenants[scope.TenantID]
		resp["tenant_id"] = t.ID
		resp["tenant_name"] = t.Name
		resp["roles"] = []string{t.Members[scope.UserID]}
		resp["entitlement_version"] = t.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *fakeBackend) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tenants/"), "/entitlements")

	b.mu.Lock()
	gate := b.entitlementGate
	b.mu.Unlock()
	if gate != nil {
		gate(tenantID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	if scope.TenantID != tenantID {
		writeErr(w, http.StatusForbidden, "token not scoped to this tenant")
		return
	}
	t := b.tenants[tenantID]
	b.entitlementHits[tenantID]++
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":           t.ID,
		"plan_code":           t.PlanCode,
		"status":              "ACTIVE",
		"seats_quantity":      t.SeatsQuantity,
		"active_seats":        t.activeSeats(),
		"entitlement_version": t.Version,
		"items":               t.Items,
	})
}

func (b *fakeBackend) handleListMembers(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tenants/"), "/members")

	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	t := b.tenants[tenantID]
	members := []map[string]interface{}{}
	for userID, role := range t.Members {
		u := b.userByID(userID)
		username, email := userID, ""
		if u != nil {
			username, email = u.Username, u.Email
		}
		members = append(members, map[string]interface{}{
			"user_id":   userID,
			"username":  username,
			"email":     email,
			"role":      role,
			"status":    "ACTIVE",
			"joined_at": time.Now().UTC(),
		})
	}
	writeJSON(w, http.StatusOK, members)
}

func (b *fakeBackend) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/tenants/"), "/members/")
	if len(parts) != 2 {
		writeErr(w, http.StatusNotFound, "not found")
		return
	}
	tenantID, userID := parts[0], parts[1]

	var req struct {
		Role   string `json:"role"`
		Status string `json:"status"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	t := b.tenants[tenantID]
	role, ok := t.Members[userID]
	if !ok {
		writeErr(w, http.StatusNotFound, "member not found")
		return
	}
	if role == "OWNER" {
		writeErr(w, http.StatusForbidden, "owner membership cannot be changed")
		return
	}
	if req.Role != "" {
		role = req.Role
		t.Members[userID] = role
	}
	status := "ACTIVE"
	if req.Status == "INACTIVE" {
		// Deactivation frees the seat.
		delete(t.Members, userID)
		status = "INACTIVE"
	}
	t.Version++
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user_id":   userID,
		"username":  userID,
		"email":     "",
		"role":      role,
		"status":    status,
		"joined_at": time.Now().UTC(),
	})
}

func (b *fakeBackend) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Slug string `json:"slug"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	id := fmt.Sprintf("tenant-%d", len(b.tenants)+1)
	b.tenants[id] = &fakeTenant{
		ID:            id,
		Name:          req.Name,
		Slug:          req.Slug,
		Status:        "ACTIVE",
		Members:       map[string]string{scope.UserID: "OWNER"},
		PlanCode:      "starter",
		SeatsQuantity: 5,
		Version:       1,
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     id,
		"name":   req.Name,
		"slug":   req.Slug,
		"status": "ACTIVE",
		"role":   "OWNER",
	})
}

func (b *fakeBackend) handleTenantInvites(w http.ResponseWriter, r *http.Request) {
	tenantID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/tenants/"), "/invites")

	b.mu.Lock()
	defer b.mu.Unlock()
	scope := b.authenticate(r)
	if scope == nil {
		writeErr(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	if r.Method == http.MethodGet {
		out := []map[string]interface{}{}
		for _, inv := range b.invites {
			if inv.TenantID == tenantID && inv.Status == "PENDING" {
				out = append(out, map[string]interface{}{
					"id":         "inv-" + inv.Email,
					"email":      inv.Email,
					"role":       inv.Role,
					"status":     inv.Status,
					"expires_at": time.Now().Add(72 * time.Hour).UTC(),
				})
			}
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	var req struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	for _, inv := range b.invites {
		if inv.TenantID == tenantID && inv.Email == req.Email && inv.Status == "PENDING" {
			writeErr(w, http.StatusConflict, "there is already a pending invitation for this email")
			return
		}
	}
	token := fmt.Sprintf("invtok-%d", len(b.invites)+1)
	b.invites[token] = &fakeInvite{TenantID: tenantID, Email: req.Email, Role: req.Role, Status: "PENDING"}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         "inv-" + req.Email,
		"email":      req.Email,
		"role":       req.Role,
		"status":     "PENDING",
		"token":      token,
		"expires_at": time.Now().Add(72 * time.Hour).UTC(),
	})
}

func (b *fakeBackend) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	inv, ok := b.invites[req.Token]
	if !ok {
		writeErr(w, http.StatusNotFound, "invitation not found")
		return
	}
	if inv.Status != "PENDING" {
		writeErr(w, http.StatusGone, "invitation is no longer redeemable")
		return
	}
	t := b.tenants[inv.TenantID]
	if t.SeatsQuantity > 0 && t.activeSeats() >= t.SeatsQuantity {
		writeErr(w, http.StatusConflict, "seat limit reached, cannot accept invitation")
		return
	}

	u := b.users[req.Username]
	if u == nil {
		u = &fakeUser{
			ID:       "user-" + req.Username,
			Username: req.Username,
			Email:    inv.Email,
			Password: req.Password,
			Roles:    []string{"user"},
		}
		b.users[req.Username] = u
	}
	if _, already := t.Members[u.ID]; already {
		writeErr(w, http.StatusConflict, "user is already a member of this tenant")
		return
	}
	t.Members[u.ID] = inv.Role
	t.Version++
	inv.Status = "ACCEPTED"
	w.WriteHeader(http.StatusNoContent)
}
