package reaper

import (
	"strings"

	"github.com/srodi/lowmemd/pkg/types"
)

// classifier assigns a candidate to the tier the selector should hold it
// in. It is resolved once at construction so the scan loop stays free of
// feature checks.
type classifier func(comm string) types.Tier

// nameList is one protected-name set. Matching is substring containment
// against the candidate's comm.
type nameList struct {
	enabled bool
	names   []string
}

func (l nameList) matches(comm string) bool {
	if !l.enabled || len(l.names) == 0 {
		return false
	}
	for _, name := range l.names {
		if name == "" {
			continue
		}
		if strings.Contains(comm, name) {
			return true
		}
	}
	return false
}

// newClassifier builds the tier strategy. With both protected lists off it
// collapses to the single-tier variant: everything is killable and the scan
// never pays for string matching. The user list is checked before the
// system list.
func newClassifier(user, system nameList) classifier {
	if !user.enabled && !system.enabled {
		return func(string) types.Tier { return types.TierKillable }
	}
	return func(comm string) types.Tier {
		if user.matches(comm) {
			return types.TierProtectedUser
		}
		if system.matches(comm) {
			return types.TierProtectedSystem
		}
		return types.TierKillable
	}
}
