package groups

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainletter/chainletter/ledger"
)

func parsed(t *testing.T, op ledger.Operation) *Control {
	t.Helper()
	ctrl, err := ParseControl(op)
	require.NoError(t, err)
	return ctrl
}

func TestStateVersionWins(t *testing.T) {
	s := newState("alice", nil)

	assert.True(t, s.observe(parsed(t, updateOp(10, "a", "trip", 3, "alice", "a"))))
	assert.False(t, s.observe(parsed(t, updateOp(11, "b", "trip", 2, "alice", "b", "carol"))),
		"lower version never replaces, even with more members")

	groups := s.groups()
	require.Len(t, groups, 1)
	assert.Equal(t, int64(3), groups[0].Version)
	assert.Equal(t, []string{"alice", "a"}, groups[0].Members)
}

func TestStateIgnoresGroupsWithoutUser(t *testing.T) {
	s := newState("alice", nil)
	assert.False(t, s.observe(parsed(t, createOp(1, "bob", "others", 1, "bob", "carol"))))
	assert.Empty(t, s.groups())
}

func TestStateNoResurrectionAfterOwnLeave(t *testing.T) {
	s := newState("alice", nil)

	s.observe(parsed(t, createOp(1, "bob", "trip", 1, "alice", "bob")))
	s.observe(parsed(t, leaveOp(2, "alice", "trip", 2)))
	assert.Empty(t, s.groups())

	assert.False(t, s.observe(parsed(t, updateOp(3, "bob", "trip", 9, "alice", "bob"))),
		"tombstone holds regardless of version")
	assert.Empty(t, s.groups())
	assert.True(t, s.tombstoned["trip"])
}

func TestStatePriorTombstonesSuppressSightings(t *testing.T) {
	s := newState("alice", map[string]bool{"old": true})
	assert.False(t, s.observe(parsed(t, createOp(1, "bob", "old", 5, "alice", "bob"))))
	assert.Empty(t, s.groups())
}

func TestStateOtherMemberLeaveFiltersMembership(t *testing.T) {
	s := newState("alice", nil)

	s.observe(parsed(t, updateOp(1, "bob", "trip", 2, "alice", "bob", "carol")))
	s.observe(parsed(t, leaveOp(2, "carol", "trip", 3)))

	groups := s.groups()
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"alice", "bob"}, groups[0].Members)

	// A strictly newer snapshot re-admits the member
	s.observe(parsed(t, updateOp(3, "bob", "trip", 5, "alice", "bob", "carol")))
	groups = s.groups()
	assert.Equal(t, []string{"alice", "bob", "carol"}, groups[0].Members)
}

func TestStatePeers(t *testing.T) {
	s := newState("alice", nil)
	s.observe(parsed(t, createOp(1, "bob", "g1", 1, "alice", "bob", "carol")))
	s.observe(parsed(t, createOp(2, "dave", "g2", 1, "alice", "dave", "bob")))

	assert.Equal(t, []string{"bob", "carol", "dave"}, s.peers())
}

// Any permutation of the same observation set converges to the same final
// {group -> highest version, non-tombstoned} map.
func TestStateConvergesUnderPermutation(t *testing.T) {
	ops := []ledger.Operation{
		createOp(1, "bob", "g1", 1, "alice", "bob"),
		updateOp(2, "carol", "g1", 4, "alice", "bob", "carol"),
		updateOp(3, "bob", "g1", 2, "alice", "bob", "dave"),
		createOp(4, "eve", "g2", 1, "alice", "eve"),
		leaveOp(5, "alice", "g2", 2),
		leaveOp(6, "bob", "g1", 3),
	}

	permute(len(ops), func(order []int) {
		s := newState("alice", nil)
		for _, i := range order {
			s.observe(parsed(t, ops[i]))
		}

		got := s.groups()
		require.Len(t, got, 1, "order %v", order)
		assert.Equal(t, "g1", got[0].GroupID)
		assert.Equal(t, int64(4), got[0].Version)
		// bob's leave at version 3 loses to the version-4 snapshot
		assert.Equal(t, []string{"alice", "bob", "carol"}, got[0].Members, "order %v", order)
		assert.True(t, s.tombstoned["g2"])
	})
}

// permute calls fn with every permutation of [0, n)
func permute(n int, fn func(order []int)) {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	var rec func(k int)
	rec = func(k int) {
		if k == n {
			fn(append([]int(nil), order...))
			return
		}
		for i := k; i < n; i++ {
			order[k], order[i] = order[i], order[k]
			rec(k + 1)
			order[k], order[i] = order[i], order[k]
		}
	}
	rec(0)
}
