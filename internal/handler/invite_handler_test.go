package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashInviteTokenDeterministic(t *testing.T) {
	h1 := hashInviteToken("some-token")
	h2 := hashInviteToken("some-token")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "sha-256 hex digest")
}

func TestHashInviteTokenDistinct(t *testing.T) {
	assert.NotEqual(t, hashInviteToken("token-a"), hashInviteToken("token-b"))
}

func TestHasAnyRole(t *testing.T) {
	assert.True(t, hasAnyRole([]string{"MEMBER", "ADMIN"}, "OWNER", "ADMIN"))
	assert.False(t, hasAnyRole([]string{"MEMBER"}, "OWNER", "ADMIN"))
	assert.False(t, hasAnyRole(nil, "OWNER"))
}
