package clan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/habituate/progression-engine/internal/domain/shared"
)

var now = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

func newClan(t *testing.T, maxMembers int) *Clan {
	t.Helper()
	c, err := NewClan(NewClanParams{ID: "c1", Name: "Night Owls", OwnerID: "u1", MaxMembers: maxMembers, Now: now})
	require.NoError(t, err)
	return c
}

func TestNewClan(t *testing.T) {
	c := newClan(t, 0)
	assert.Equal(t, DefaultMaxMembers, c.MaxMembers)
	assert.Equal(t, 1, c.Level)
	assert.Equal(t, "🏰", c.Icon)

	_, err := NewClan(NewClanParams{ID: "c1", Name: "  "})
	assert.True(t, shared.IsValidation(err))
}

func TestAddMember(t *testing.T) {
	c := newClan(t, 2)

	owner, err := c.AddMember("u1", now)
	require.NoError(t, err)
	assert.Equal(t, RoleLeader, owner.Role)

	m, err := c.AddMember("u2", now)
	require.NoError(t, err)
	assert.Equal(t, RoleMember, m.Role)
	assert.Equal(t, 2, c.MemberCount)

	_, err = c.AddMember("u3", now)
	assert.ErrorIs(t, err, shared.ErrInvalidState)
	assert.Equal(t, 2, c.MemberCount)
}

func TestContribute_MovesBothCounters(t *testing.T) {
	c := newClan(t, 10)
	a, _ := c.AddMember("u1", now)
	b, _ := c.AddMember("u2", now)

	res, err := c.Contribute(a, 300, now)
	require.NoError(t, err)
	assert.False(t, res.LeveledUp())

	res, err = c.Contribute(b, 250, now)
	require.NoError(t, err)
	assert.True(t, res.LeveledUp())
	assert.Equal(t, 2, res.NewLevel)
	assert.Equal(t, int64(550), c.TotalXP)
	assert.Equal(t, int64(250), res.MemberTotal)

	assert.NoError(t, c.VerifyLedger([]*Membership{a, b}))
	assert.ErrorIs(t, c.VerifyLedger([]*Membership{a}), shared.ErrInvariantViolation)
}

func TestContribute_Rejects(t *testing.T) {
	c := newClan(t, 10)
	m, _ := c.AddMember("u1", now)

	_, err := c.Contribute(m, -5, now)
	assert.True(t, shared.IsValidation(err))

	other := &Membership{ClanID: "c2", UserID: "u1"}
	_, err = c.Contribute(other, 5, now)
	assert.True(t, shared.IsNotFound(err))
	assert.Equal(t, int64(0), c.TotalXP)
}

func TestTopContributors(t *testing.T) {
	members := []*Membership{
		{UserID: "a", XPContributed: 10},
		{UserID: "b", XPContributed: 50},
		{UserID: "c", XPContributed: 50},
		{UserID: "d", XPContributed: 5},
	}
	top := TopContributors(members, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].UserID)
	assert.Equal(t, "c", top[1].UserID)
	assert.Equal(t, "a", top[2].UserID)
	assert.Equal(t, "a", members[0].UserID, "input is not reordered")
}
