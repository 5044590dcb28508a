package session

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// EntitlementItem is one feature/limit pair with the layer that granted it
type EntitlementItem struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// EntitlementSnapshot is the per-tenant plan/seat/feature view. ActiveSeats
// is derived server-side from ACTIVE memberships; it is never authoritative
// client state and is refetched after any membership mutation.
// EntitlementVersion is a change signal only, not arithmetic.
type EntitlementSnapshot struct {
	TenantID           string            `json:"tenant_id"`
	PlanCode           string            `json:"plan_code"`
	Status             string            `json:"status"`
	SeatsQuantity      int64             `json:"seats_quantity"`
	ActiveSeats        int64             `json:"active_seats"`
	EntitlementVersion int64             `json:"entitlement_version"`
	Items              []EntitlementItem `json:"items"`
}

// Cache entry states. Stale entries may still be displayed with a
// revalidating affordance, but entitlement-gated actions wait for Fresh.
type entryState int

const (
	stateLoading entryState = iota + 1
	stateFresh
	stateStale
)

type cacheEntry struct {
	state    entryState
	snapshot *EntitlementSnapshot
}

// EntitlementCache answers what plan, seats and features apply to the
// active tenant. Entries are keyed per tenant and resolved through the
// active tenant id at call time, so a stale snapshot from one tenant can
// never display while another is active.
type EntitlementCache struct {
	client *Client
	store  *Store
	log    *zap.Logger

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

// NewEntitlementCache creates an entitlement cache bound to the store
func NewEntitlementCache(client *Client, store *Store, logger *zap.Logger) *EntitlementCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &EntitlementCache{
		client:  client,
		store:   store,
		log:     logger,
		entries: make(map[string]*cacheEntry),
	}
	store.OnReset(c.reset)
	return c
}

// Get returns the entitlement snapshot for the active tenant, fetching
// fresh data when no Fresh entry exists. Results from a fetch started
// before a tenant switch are discarded and the fetch is retried against
// the new active tenant, so cross-tenant leakage cannot occur even when a
// slow fetch races a fast switch.
func (c *EntitlementCache) Get(ctx context.Context) (EntitlementSnapshot, error) {
	for {
		current, ok := c.store.Current()
		if !ok {
			return EntitlementSnapshot{}, ErrNotAuthenticated
		}
		if current.ActiveTenantID == "" {
			return EntitlementSnapshot{}, ErrNoActiveTenant
		}
		tenantID := current.ActiveTenantID

		c.mu.Lock()
		if e, exists := c.entries[tenantID]; exists && e.state == stateFresh {
			snap := *e.snapshot
			c.mu.Unlock()
			return snap, nil
		}
		// Mark loading; keep any stale snapshot for display-while-revalidating.
		e, exists := c.entries[tenantID]
		if !exists {
			e = &cacheEntry{}
			c.entries[tenantID] = e
		}
		e.state = stateLoading
		c.mu.Unlock()

		gen := c.store.Generation()

		var snap EntitlementSnapshot
		err := c.client.doJSON(ctx, http.MethodGet,
			fmt.Sprintf("/tenants/%s/entitlements", tenantID), true, nil, &snap)
		if err != nil {
			c.mu.Lock()
			if e, exists := c.entries[tenantID]; exists && e.state == stateLoading {
				e.state = stateStale
			}
			c.mu.Unlock()
			return EntitlementSnapshot{}, err
		}

		if c.store.Generation() != gen {
			// The active tenant changed while this fetch was in flight.
			// Discard the result and resolve the new active tenant.
			c.log.Debug("Discarded entitlement fetch from superseded tenant context",
				zap.String("tenant_id", tenantID))
			continue
		}

		c.mu.Lock()
		c.entries[tenantID] = &cacheEntry{state: stateFresh, snapshot: &snap}
		c.mu.Unlock()

		return snap, nil
	}
}

// Peek returns the last known snapshot for the active tenant without
// fetching, plus whether it is Fresh. Pages use it to keep showing data
// while a revalidation runs; entitlement-gated actions must not.
func (c *EntitlementCache) Peek() (EntitlementSnapshot, bool) {
	current, ok := c.store.Current()
	if !ok || current.ActiveTenantID == "" {
		return EntitlementSnapshot{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, exists := c.entries[current.ActiveTenantID]
	if !exists || e.snapshot == nil {
		return EntitlementSnapshot{}, false
	}
	return *e.snapshot, e.state == stateFresh
}

// Invalidate marks a tenant's entry stale so the next Get refetches.
// Called after any membership or plan mutation for that tenant.
func (c *EntitlementCache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, exists := c.entries[tenantID]; exists {
		e.state = stateStale
	}
}

// InvalidateAll marks every entry stale
func (c *EntitlementCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.state = stateStale
	}
}

// CanInvite reports whether the active tenant has a free seat. It always
// evaluates a Fresh snapshot, so a membership mutation that already
// invalidated the entry forces a refetch before the gate is computed. This
// is a UX gate only; the backend enforces the limit at accept time.
func (c *EntitlementCache) CanInvite(ctx context.Context) (bool, error) {
	snap, err := c.Get(ctx)
	if err != nil {
		return false, err
	}
	if snap.SeatsQuantity == 0 {
		// Unlimited seats
		return true, nil
	}
	return snap.ActiveSeats < snap.SeatsQuantity, nil
}

// reset drops every entry when the session is cleared, so nothing from a
// previous user is observable after re-login
func (c *EntitlementCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}
