package groups

import (
	"sort"

	"github.com/chainletter/chainletter/store"
)

// state accumulates membership observations for one resolving account.
// All merge rules are commutative (highest version wins, tombstones are set
// unions), so the final state is independent of the order histories are
// scanned in.
type state struct {
	user string

	// known holds the highest-version create/update snapshot per group
	known map[string]*store.Group

	// leaves records the highest version at which each member left a group.
	// A member is excluded from a snapshot unless the snapshot's version is
	// strictly greater than their recorded leave.
	leaves map[string]map[string]int64

	// tombstoned marks groups the resolving user left. Regardless of version,
	// no create/update sighting resurrects a tombstoned group.
	tombstoned map[string]bool
}

func newState(user string, tombstoned map[string]bool) *state {
	owned := make(map[string]bool, len(tombstoned))
	for id := range tombstoned {
		owned[id] = true
	}
	return &state{
		user:       user,
		known:      map[string]*store.Group{},
		leaves:     map[string]map[string]int64{},
		tombstoned: owned,
	}
}

// seed installs snapshots persisted by an earlier run. Seeded entries take
// part in version arbitration like any sighting, so a rescan that only
// observes lower versions cannot regress what is already stored.
func (s *state) seed(groups []*store.Group) {
	for _, g := range groups {
		if s.tombstoned[g.GroupID] {
			continue
		}
		snapshot := *g
		snapshot.Members = append([]string(nil), g.Members...)
		s.known[g.GroupID] = &snapshot
	}
}

// observe merges one control operation. Returns true when the observation
// changed the known snapshot for its group.
func (s *state) observe(ctrl *Control) bool {
	switch ctrl.Action {
	case ActionLeave:
		return s.observeLeave(ctrl)
	case ActionCreate, ActionUpdate:
		return s.observeSnapshot(ctrl)
	}
	return false
}

func (s *state) observeLeave(ctrl *Control) bool {
	if ctrl.Account == "" {
		return false
	}

	if s.leaves[ctrl.GroupID] == nil {
		s.leaves[ctrl.GroupID] = map[string]int64{}
	}
	if ctrl.Version > s.leaves[ctrl.GroupID][ctrl.Account] {
		s.leaves[ctrl.GroupID][ctrl.Account] = ctrl.Version
	}

	if ctrl.Account != s.user {
		return false
	}
	if s.tombstoned[ctrl.GroupID] {
		return false
	}
	s.tombstoned[ctrl.GroupID] = true
	delete(s.known, ctrl.GroupID)
	return true
}

func (s *state) observeSnapshot(ctrl *Control) bool {
	if s.tombstoned[ctrl.GroupID] {
		return false
	}
	if !contains(ctrl.Members, s.user) {
		return false
	}
	if current, ok := s.known[ctrl.GroupID]; ok && ctrl.Version <= current.Version {
		return false
	}

	s.known[ctrl.GroupID] = &store.Group{
		GroupID:   ctrl.GroupID,
		Name:      ctrl.Name,
		Members:   append([]string(nil), ctrl.Members...),
		Creator:   ctrl.Creator,
		CreatedAt: ctrl.Timestamp,
		Version:   ctrl.Version,
	}
	return true
}

// effectiveMembers is the snapshot membership minus members whose recorded
// leave is at or above the snapshot version.
func (s *state) effectiveMembers(g *store.Group) []string {
	left := s.leaves[g.GroupID]
	out := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		if left[m] >= g.Version {
			continue
		}
		out = append(out, m)
	}
	return out
}

// groups returns the final snapshots with leave-filtered membership, sorted
// by group id for deterministic output.
func (s *state) groups() []*store.Group {
	out := make([]*store.Group, 0, len(s.known))
	for _, g := range s.known {
		snapshot := *g
		snapshot.Members = s.effectiveMembers(g)
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// peers returns every effective member across known groups except the
// resolving user, the candidate pool for chain expansion.
func (s *state) peers() []string {
	seen := map[string]bool{}
	var out []string
	for _, g := range s.known {
		for _, m := range s.effectiveMembers(g) {
			if m == s.user || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

func contains(members []string, username string) bool {
	for _, m := range members {
		if m == username {
			return true
		}
	}
	return false
}
