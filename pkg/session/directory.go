package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TenantMembership is the client-visible projection of a tenant the user
// belongs to. Read-only; sourced from the list-my-tenants call.
type TenantMembership struct {
	TenantID string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	Status   string `json:"status"`
	Role     string `json:"role"`
}

// Directory enumerates the user's tenants and mediates the switch to a new
// active tenant. A switch obtains a token scoped to the target tenant
// before anything tenant-scoped is requested with it.
type Directory struct {
	client *Client
	store  *Store
	log    *zap.Logger

	// The list keeps the server's ordering; it is stable within a session
	// absent mutation and refreshed when the tenant set may have changed.
	listMu sync.Mutex
	list   []TenantMembership
	loaded bool
}

// NewDirectory creates a tenant directory backed by the session store
func NewDirectory(client *Client, store *Store, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Directory{client: client, store: store, log: logger}
	store.OnReset(d.reset)
	return d
}

// List returns the tenants the user belongs to, fetching once per session
func (d *Directory) List(ctx context.Context) ([]TenantMembership, error) {
	d.listMu.Lock()
	if d.loaded {
		cached := append([]TenantMembership(nil), d.list...)
		d.listMu.Unlock()
		return cached, nil
	}
	d.listMu.Unlock()

	return d.Refresh(ctx)
}

// Refresh re-fetches the tenant list. Call after accepting an invite or
// creating a tenant, when the user's tenant set may have changed.
func (d *Directory) Refresh(ctx context.Context) ([]TenantMembership, error) {
	var tenants []TenantMembership
	if err := d.client.doJSON(ctx, http.MethodGet, "/me/tenants", true, nil, &tenants); err != nil {
		return nil, err
	}

	d.listMu.Lock()
	d.list = tenants
	d.loaded = true
	d.listMu.Unlock()

	return append([]TenantMembership(nil), tenants...), nil
}

// Create provisions a new tenant owned by the current user. The tenant
// list is refreshed afterwards so the new tenant is immediately listable
// and switchable.
func (d *Directory) Create(ctx context.Context, name, slug string) (TenantMembership, error) {
	if _, ok := d.store.Current(); !ok {
		return TenantMembership{}, ErrNotAuthenticated
	}

	var created TenantMembership
	err := d.client.doJSON(ctx, http.MethodPost, "/tenants", true, map[string]string{
		"name": name,
		"slug": slug,
	}, &created)
	if err != nil {
		return TenantMembership{}, err
	}

	if _, err := d.Refresh(ctx); err != nil {
		d.log.Warn("Tenant list refresh after creation failed", zap.Error(err))
	}

	d.log.Info("Tenant created", zap.String("tenant_id", created.TenantID))
	return created, nil
}

// switchResponse is the /sessions/switch-tenant response shape
type switchResponse struct {
	Token              string   `json:"token"`
	UserID             string   `json:"user_id"`
	TenantID           string   `json:"tenant_id"`
	TenantName         string   `json:"tenant_name"`
	Roles              []string `json:"roles"`
	EntitlementVersion int64    `json:"entitlement_version"`
	ExpiresIn          int64    `json:"expires_in"`
}

// Switch makes tenantID the active tenant by obtaining a new session token
// scoped to it. The previous session stays fully intact until the new token
// has arrived; a failed switch mutates nothing. Switching to a tenant the
// user does not belong to fails with ErrForbidden.
func (d *Directory) Switch(ctx context.Context, tenantID string) (Session, error) {
	current, ok := d.store.Current()
	if !ok {
		return Session{}, ErrNotAuthenticated
	}

	tenants, err := d.List(ctx)
	if err != nil {
		return Session{}, err
	}

	found := false
	for _, t := range tenants {
		if t.TenantID == tenantID {
			found = true
			break
		}
	}
	if !found {
		d.log.Warn("Switch to unlisted tenant rejected", zap.String("tenant_id", tenantID))
		return Session{}, ErrForbidden
	}

	var resp switchResponse
	err = d.client.doJSON(ctx, http.MethodPost, "/sessions/switch-tenant", true, map[string]string{
		"tenant_id": tenantID,
	}, &resp)
	if err != nil {
		// The old session is untouched; the caller stays on the prior
		// tenant context.
		return Session{}, err
	}

	next := Session{
		Token:              resp.Token,
		UserID:             resp.UserID,
		Username:           current.Username,
		Email:              current.Email,
		ActiveTenantID:     resp.TenantID,
		ActiveTenantName:   resp.TenantName,
		Roles:              resp.Roles,
		EntitlementVersion: resp.EntitlementVersion,
		ExpiresAt:          time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	d.store.replaceForSwitch(&next)

	d.log.Info("Switched active tenant",
		zap.String("tenant_id", resp.TenantID),
		zap.Strings("roles", resp.Roles))

	return next, nil
}

// Ensure is the route guard for tenant-scoped pages: the active tenant must
// equal the page's tenant before any tenant data is fetched. When it does
// not, Ensure switches first and the caller blocks until that completes.
func (d *Directory) Ensure(ctx context.Context, tenantID string) (Session, error) {
	current, ok := d.store.Current()
	if !ok {
		return Session{}, ErrNotAuthenticated
	}
	if current.ActiveTenantID == tenantID {
		return current, nil
	}
	return d.Switch(ctx, tenantID)
}

// reset drops the cached list when the session is cleared
func (d *Directory) reset() {
	d.listMu.Lock()
	d.list = nil
	d.loaded = false
	d.listMu.Unlock()
}
