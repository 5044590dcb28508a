package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Walks the whole core end to end: login with two tenants, work inside one,
// grow its roster through an invite, then switch and confirm the second
// tenant's snapshot is fully independent.
func TestWorkspaceLifecycle(t *testing.T) {
	b := newFakeBackend()
	defer b.Close()
	b.addUser("user-u", "u", "u@example.com", "pw")
	b.addUser("user-v", "v", "v@example.com", "pw")
	b.addTenant(&fakeTenant{
		ID:            "tenant-a",
		Name:          "Alpha",
		Slug:          "alpha",
		PlanCode:      "starter",
		SeatsQuantity: 5,
		Members:       map[string]string{"user-u": "OWNER", "user-v": "MEMBER"},
		Items: []EntitlementItem{
			{Key: "limits.projects", Value: "10", Source: "PLAN"},
		},
	})
	b.addTenant(&fakeTenant{
		ID:            "tenant-b",
		Name:          "Beta",
		Slug:          "beta",
		PlanCode:      "pro",
		SeatsQuantity: 20,
		Members:       map[string]string{"user-u": "ADMIN"},
		Items: []EntitlementItem{
			{Key: "limits.projects", Value: "100", Source: "PLAN"},
		},
	})

	m := newTestManager(t, b, nil)
	ctx := context.Background()

	_, err := m.Store.Login(ctx, "u", "pw")
	require.NoError(t, err)

	tenants, err := m.Directory.List(ctx)
	require.NoError(t, err)
	require.Len(t, tenants, 2)

	_, err = m.Directory.Switch(ctx, "tenant-a")
	require.NoError(t, err)

	snap, err := m.Entitlements.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "starter", snap.PlanCode)
	assert.Equal(t, int64(5), snap.SeatsQuantity)
	assert.Equal(t, int64(2), snap.ActiveSeats)

	info, err := m.Store.Describe(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", info.TenantID)
	assert.Equal(t, []string{"OWNER"}, info.Roles)

	ok, err := m.Entitlements.CanInvite(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	invite, err := m.Members.CreateInvite(ctx, "tenant-a", InviteRequest{
		Email: "x@y.com",
		Role:  "MEMBER",
	})
	require.NoError(t, err)

	err = m.Members.AcceptInvite(ctx, AcceptInviteRequest{
		Token:    invite.Token,
		Username: "x",
		Password: "pw",
	})
	require.NoError(t, err)

	// The acceptance invalidated the cache; the refetched snapshot shows
	// the grown roster.
	snap, err = m.Entitlements.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.ActiveSeats)

	// Beta has its own snapshot, untouched by anything done in Alpha.
	_, err = m.Directory.Switch(ctx, "tenant-b")
	require.NoError(t, err)

	snap, err = m.Entitlements.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tenant-b", snap.TenantID)
	assert.Equal(t, "pro", snap.PlanCode)
	assert.Equal(t, int64(1), snap.ActiveSeats)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "100", snap.Items[0].Value)
}
