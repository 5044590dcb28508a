package session

import (
	"go.uber.org/zap"
)

// Config configures a Manager
type Config struct {
	// BaseURL of the backend, no trailing slash.
	BaseURL string
	// Tokens persists the session token across restarts. Defaults to an
	// in-memory store when nil.
	Tokens TokenStore
	// Logger defaults to a nop logger when nil.
	Logger *zap.Logger
	// OnSessionExpired runs once when a previously valid session gets a
	// 401 and the store has been cleared. Typically routes to the login
	// screen with a "session expired" notice.
	OnSessionExpired func()
}

// Manager wires the session core together: one transport, one store, and
// the tenant directory, entitlement cache and member service hanging off
// it. Construct one per backend.
type Manager struct {
	Store        *Store
	Directory    *Directory
	Entitlements *EntitlementCache
	Members      *Members

	client *Client
}

// NewManager builds the fully wired session core
func NewManager(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	tokens := cfg.Tokens
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}

	client := NewClient(cfg.BaseURL, log)
	store := NewStore(client, tokens, log, cfg.OnSessionExpired)
	directory := NewDirectory(client, store, log)
	entitlements := NewEntitlementCache(client, store, log)
	members := NewMembers(client, store, entitlements, log)

	return &Manager{
		Store:        store,
		Directory:    directory,
		Entitlements: entitlements,
		Members:      members,
		client:       client,
	}
}
