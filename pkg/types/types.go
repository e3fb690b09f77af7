package types

import "time"

// Adj bounds mirror the kernel oom_adj range.
const (
	AdjMin = -17
	AdjMax = 15
)

// AdjNoPressure is the sentinel cutoff meaning no threshold matched and no
// scan should happen.
const AdjNoPressure = AdjMax + 1

// ProcStat is one row of the process-table snapshot: everything the reaper
// needs to judge a candidate.
type ProcStat struct {
	PID      int
	Comm     string
	OomAdj   int
	RSSPages uint64
}

// MemStat holds the meminfo counters the reaper consults, all in pages.
type MemStat struct {
	FreePages    uint64
	FilePages    uint64
	ShmemPages   uint64
	ActiveAnon   uint64
	InactiveAnon uint64
	ActiveFile   uint64
	InactiveFile uint64
}

// EffectiveFile is the file-backed page count with shmem excluded, since
// shmem pages cannot be reclaimed by dropping the cache.
func (m MemStat) EffectiveFile() uint64 {
	if m.ShmemPages > m.FilePages {
		return 0
	}
	return m.FilePages - m.ShmemPages
}

// ReclaimableEstimate is the baseline count of pages the system could
// plausibly get back: everything on the active and inactive LRU lists.
func (m MemStat) ReclaimableEstimate() uint64 {
	return m.ActiveAnon + m.InactiveAnon + m.ActiveFile + m.InactiveFile
}

// Threshold pairs a free-page floor with the oom_adj cutoff that becomes
// active once both free and file-backed pages drop below that floor.
type Threshold struct {
	MinFree uint64
	Adj     int
}

// Tier buckets candidates by how reluctant the reaper is to kill them.
// Lower values are acted on first.
type Tier int

const (
	TierKillable Tier = iota
	TierProtectedUser
	TierProtectedSystem

	TierCount
)

func (t Tier) String() string {
	switch t {
	case TierKillable:
		return "killable"
	case TierProtectedUser:
		return "protected-user"
	case TierProtectedSystem:
		return "protected-system"
	default:
		return "unknown"
	}
}

// KillReport records one victim the reaper acted on.
type KillReport struct {
	PID      int
	Comm     string
	Adj      int
	RSSPages uint64
	Tier     Tier
	DryRun   bool
	When     time.Time
}
