package reaper

import (
	"log"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/srodi/lowmemd/pkg/proc"
	"github.com/srodi/lowmemd/pkg/report"
	"github.com/srodi/lowmemd/pkg/types"
)

// deathGrace is how long a freshly killed victim gets to actually exit
// before the reaper will consider killing again.
const deathGrace = time.Second

// Settings carries the reaper knobs derived from configuration. Swapped
// wholesale on reload.
type Settings struct {
	Thresholds    []types.Threshold
	ProtectUser   []string
	ProtectSystem []string
	UserEnabled   bool
	SystemEnabled bool
	DebugLevel    int
	DryRun        bool
}

// Reaper decides, under memory pressure, which process to kill. One
// Evaluate call selects and signals at most one victim; a pending-death
// window then blocks further kills until the victim exits or the grace
// interval lapses. All state lives behind a single mutex so concurrent
// triggers serialize instead of tearing the pending-death check.
type Reaper struct {
	mu sync.Mutex

	thresholds []types.Threshold
	classify   classifier
	debugLevel int
	dryRun     bool

	pendingPID      int
	pendingDeadline time.Time

	onKill func(types.KillReport)

	// Collaborators, swappable in tests.
	readMemStat func() (types.MemStat, error)
	snapshot    func() ([]types.ProcStat, error)
	kill        func(pid int) error
	now         func() time.Time
}

// New builds a reaper wired to the real /proc sources and SIGKILL.
func New(s Settings) *Reaper {
	r := &Reaper{
		readMemStat: proc.ReadMemStat,
		snapshot:    proc.Snapshot,
		kill:        func(pid int) error { return unix.Kill(pid, unix.SIGKILL) },
		now:         time.Now,
	}
	r.apply(s)
	return r
}

// SetSettings installs a new configuration. Takes effect on the next
// Evaluate; a pass already running finishes under the old tables.
func (r *Reaper) SetSettings(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.apply(s)
}

func (r *Reaper) apply(s Settings) {
	r.thresholds = s.Thresholds
	r.classify = newClassifier(
		nameList{enabled: s.UserEnabled, names: s.ProtectUser},
		nameList{enabled: s.SystemEnabled, names: s.ProtectSystem},
	)
	r.debugLevel = s.DebugLevel
	r.dryRun = s.DryRun
}

// OnKill registers a callback invoked (under the reaper lock) for every
// victim acted on. Used for metrics and the kill log.
func (r *Reaper) OnKill(fn func(types.KillReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onKill = fn
}

// OnProcessExit clears the pending-death window early when the victim is
// observed to have exited. Any other pid is a no-op.
func (r *Reaper) OnProcessExit(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingPID != 0 && r.pendingPID == pid {
		r.logf(2, "pending victim %d exited, clearing death window", pid)
		r.pendingPID = 0
		r.pendingDeadline = time.Time{}
	}
}

// Thresholds returns the active threshold table.
func (r *Reaper) Thresholds() []types.Threshold {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.thresholds
}

// Pending reports the victim currently in its death window, if any.
func (r *Reaper) Pending() (pid int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pendingPID != 0 && !r.now().After(r.pendingDeadline) {
		return r.pendingPID, true
	}
	return 0, false
}

// MinAdj walks a threshold table in ascending floor order and returns the
// cutoff of the first entry whose floor exceeds both the free and the
// file-backed page counts, or AdjNoPressure when none does. Cached pages
// count as free here, but cannot on their own mask pressure: both metrics
// must be under the floor.
func MinAdj(table []types.Threshold, mem types.MemStat) int {
	file := mem.EffectiveFile()
	for _, th := range table {
		if mem.FreePages < th.MinFree && file < th.MinFree {
			return th.Adj
		}
	}
	return types.AdjNoPressure
}

// Evaluate is the reclaim entry point. It returns the estimated number of
// reclaimable pages; when a victim is killed this pass, the victim's
// resident size is already subtracted from the estimate even though the
// exit has not completed yet. The estimate is therefore optimistic, not a
// guarantee.
//
// With scanRequested false it only reports the estimate: no scan, no kill.
// While a previous victim's death window is open it returns 0 immediately,
// signalling that this source has nothing further to offer.
func (r *Reaper) Evaluate(scanRequested bool, nrToScan int) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pendingPID != 0 {
		if !r.now().After(r.pendingDeadline) {
			report.DebounceSkipsTotal.Inc()
			return 0, nil
		}
		// Lazy expiry: the victim never reported an exit in time.
		r.logf(2, "death window for %d expired", r.pendingPID)
		r.pendingPID = 0
		r.pendingDeadline = time.Time{}
	}

	mem, err := r.readMemStat()
	if err != nil {
		return 0, err
	}
	minAdj := MinAdj(r.thresholds, mem)
	if scanRequested {
		r.logf(3, "evaluate %d, free %d file %d, minadj %d",
			nrToScan, mem.FreePages, mem.EffectiveFile(), minAdj)
	}

	report.MinAdj.Set(float64(minAdj))

	baseline := mem.ReclaimableEstimate()
	if !scanRequested || minAdj == types.AdjNoPressure {
		if scanRequested {
			report.NoPressureTotal.Inc()
		}
		report.ReclaimablePages.Set(float64(baseline))
		r.logf(5, "evaluate %d, return %d", nrToScan, baseline)
		return baseline, nil
	}

	report.ScansTotal.Inc()
	procs, err := r.snapshot()
	if err != nil {
		return 0, err
	}
	best := r.selectVictims(procs, minAdj)

	for tier := types.TierKillable; tier < types.TierCount; tier++ {
		sel := best[tier]
		if sel == nil {
			continue
		}
		r.logf(1, "send sigkill to %d (%s), adj %d, size %d",
			sel.PID, sel.Comm, sel.OomAdj, sel.RSSPages)
		if !r.dryRun {
			if err := r.kill(sel.PID); err != nil {
				r.logf(1, "kill %d failed: %v", sel.PID, err)
			}
		}
		r.pendingPID = sel.PID
		r.pendingDeadline = r.now().Add(deathGrace)
		if sel.RSSPages < baseline {
			baseline -= sel.RSSPages
		} else {
			baseline = 0
		}
		kr := types.KillReport{
			PID:      sel.PID,
			Comm:     sel.Comm,
			Adj:      sel.OomAdj,
			RSSPages: sel.RSSPages,
			Tier:     tier,
			DryRun:   r.dryRun,
			When:     r.now(),
		}
		report.RecordKill(kr)
		if r.onKill != nil {
			r.onKill(kr)
		}
		break
	}

	report.ReclaimablePages.Set(float64(baseline))
	r.logf(4, "evaluate %d, return %d", nrToScan, baseline)
	return baseline, nil
}

// selectVictims holds one best-so-far candidate per tier. A slot is seeded
// with the active cutoff, so a first candidate still has to meet it; a held
// slot is only displaced by strictly higher adj, or equal adj and strictly
// larger resident size. Exact ties keep the earlier-enumerated process.
func (r *Reaper) selectVictims(procs []types.ProcStat, minAdj int) [types.TierCount]*types.ProcStat {
	var best [types.TierCount]*types.ProcStat
	var bestAdj [types.TierCount]int
	var bestSize [types.TierCount]uint64
	for tier := range bestAdj {
		bestAdj[tier] = minAdj
	}

	for i := range procs {
		p := &procs[i]
		if p.OomAdj < minAdj {
			continue
		}
		if p.RSSPages == 0 {
			continue
		}
		tier := r.classify(p.Comm)
		if tier != types.TierKillable {
			r.logf(2, "process %d (%s) is protected (%s)", p.PID, p.Comm, tier)
		}
		if best[tier] != nil {
			if p.OomAdj < bestAdj[tier] {
				continue
			}
			if p.OomAdj == bestAdj[tier] && p.RSSPages <= bestSize[tier] {
				continue
			}
		} else if p.OomAdj < bestAdj[tier] {
			// Cannot trigger after the cutoff filter above; kept as an
			// explicit guard on the seeded slot.
			continue
		}
		best[tier] = p
		bestAdj[tier] = p.OomAdj
		bestSize[tier] = p.RSSPages
		r.logf(2, "select %d (%s), adj %d, size %d, to kill",
			p.PID, p.Comm, p.OomAdj, p.RSSPages)
	}
	return best
}

func (r *Reaper) logf(level int, format string, args ...any) {
	if r.debugLevel >= level {
		log.Printf(format, args...)
	}
}
