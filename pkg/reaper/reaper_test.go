package reaper

import (
	"testing"
	"time"

	"github.com/srodi/lowmemd/pkg/types"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	reaper  *Reaper
	clock   *fakeClock
	mem     types.MemStat
	procs   []types.ProcStat
	killed  []int
	scans   int
	reports []types.KillReport
}

func newHarness(t *testing.T, s Settings) *harness {
	t.Helper()
	h := &harness{clock: &fakeClock{now: time.Unix(1000, 0)}}
	h.reaper = New(s)
	h.reaper.readMemStat = func() (types.MemStat, error) { return h.mem, nil }
	h.reaper.snapshot = func() ([]types.ProcStat, error) {
		h.scans++
		return h.procs, nil
	}
	h.reaper.kill = func(pid int) error {
		h.killed = append(h.killed, pid)
		return nil
	}
	h.reaper.now = func() time.Time { return h.clock.now }
	h.reaper.onKill = func(r types.KillReport) { h.reports = append(h.reports, r) }
	return h
}

func basicSettings() Settings {
	return Settings{
		Thresholds: []types.Threshold{
			{MinFree: 1024, Adj: 0},
			{MinFree: 4096, Adj: 8},
		},
	}
}

// pressureMem sits below the first floor on both metrics; baseline
// reclaimable estimate is 500 pages.
func pressureMem() types.MemStat {
	return types.MemStat{
		FreePages:    500,
		FilePages:    900,
		ActiveAnon:   100,
		InactiveAnon: 50,
		ActiveFile:   200,
		InactiveFile: 150,
	}
}

func TestMinAdjPicksFirstMatchingFloor(t *testing.T) {
	table := []types.Threshold{
		{MinFree: 1536, Adj: 0},
		{MinFree: 2048, Adj: 1},
		{MinFree: 4096, Adj: 6},
		{MinFree: 16384, Adj: 12},
	}
	cases := []struct {
		name       string
		free, file uint64
		want       int
	}{
		{"bothAboveAll", 20000, 20000, types.AdjNoPressure},
		{"bothBelowFirst", 1000, 1000, 0},
		{"fileMasksFirst", 1000, 1600, 1},
		{"onlyLastMatches", 5000, 5000, 12},
		{"freeHighFileLow", 20000, 100, types.AdjNoPressure},
		{"exactFloorNotBelow", 1536, 1536, 1},
	}
	for _, tc := range cases {
		mem := types.MemStat{FreePages: tc.free, FilePages: tc.file}
		if got := MinAdj(table, mem); got != tc.want {
			t.Fatalf("%s: expected adj %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestMinAdjShmemExcludedFromFilePages(t *testing.T) {
	table := []types.Threshold{{MinFree: 1024, Adj: 0}}
	mem := types.MemStat{FreePages: 500, FilePages: 2000, ShmemPages: 1500}
	if got := MinAdj(table, mem); got != 0 {
		t.Fatalf("shmem-heavy cache should not mask pressure, got adj %d", got)
	}
}

func TestMinAdjMonotonicUnderFallingMemory(t *testing.T) {
	table := []types.Threshold{
		{MinFree: 1536, Adj: 0},
		{MinFree: 2048, Adj: 1},
		{MinFree: 4096, Adj: 6},
	}
	prev := types.AdjNoPressure
	for free := uint64(5000); ; free -= 100 {
		mem := types.MemStat{FreePages: free, FilePages: free}
		adj := MinAdj(table, mem)
		if adj > prev {
			t.Fatalf("cutoff relaxed from %d to %d as free fell to %d", prev, adj, free)
		}
		prev = adj
		if free < 100 {
			break
		}
	}
}

func TestEvaluateWithoutScanReportsEstimateOnly(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{{PID: 10, Comm: "app", OomAdj: 5, RSSPages: 100}}

	got, err := h.reaper.Evaluate(false, 0)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if got != 500 {
		t.Fatalf("expected baseline 500, got %d", got)
	}
	if h.scans != 0 || len(h.killed) != 0 {
		t.Fatalf("scan_requested=false must not scan or kill (scans=%d kills=%v)", h.scans, h.killed)
	}
}

func TestEvaluateNoPressureSkipsScan(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.mem.FreePages = 5000
	h.mem.FilePages = 5000

	got, err := h.reaper.Evaluate(true, 32)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if got != 500 {
		t.Fatalf("expected baseline 500, got %d", got)
	}
	if h.scans != 0 || len(h.killed) != 0 {
		t.Fatalf("no pressure must not scan or kill (scans=%d kills=%v)", h.scans, h.killed)
	}
}

func TestEvaluateKillsLargestEligible(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{
		{PID: 10, Comm: "small", OomAdj: 3, RSSPages: 100},
		{PID: 11, Comm: "large", OomAdj: 3, RSSPages: 300},
		{PID: 12, Comm: "negative", OomAdj: -5, RSSPages: 900},
		{PID: 13, Comm: "empty", OomAdj: 10, RSSPages: 0},
	}

	got, err := h.reaper.Evaluate(true, 32)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(h.killed) != 1 || h.killed[0] != 11 {
		t.Fatalf("expected pid 11 killed, got %v", h.killed)
	}
	if got != 500-300 {
		t.Fatalf("estimate should subtract victim RSS: expected 200, got %d", got)
	}
	if len(h.reports) != 1 || h.reports[0].Tier != types.TierKillable {
		t.Fatalf("unexpected kill reports: %+v", h.reports)
	}
}

func TestHigherAdjBeatsLargerSize(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{
		{PID: 20, Comm: "huge-low", OomAdj: 2, RSSPages: 9000},
		{PID: 21, Comm: "tiny-high", OomAdj: 9, RSSPages: 10},
	}

	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(h.killed) != 1 || h.killed[0] != 21 {
		t.Fatalf("higher adj should win regardless of size, got %v", h.killed)
	}
}

func TestExactTieKeepsFirstEnumerated(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{
		{PID: 30, Comm: "first", OomAdj: 4, RSSPages: 200},
		{PID: 31, Comm: "second", OomAdj: 4, RSSPages: 200},
	}

	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(h.killed) != 1 || h.killed[0] != 30 {
		t.Fatalf("exact tie should keep the first-enumerated process, got %v", h.killed)
	}
}

func TestTierPrecedenceKillableFirst(t *testing.T) {
	s := basicSettings()
	s.UserEnabled = true
	s.ProtectUser = []string{"system_server"}
	h := newHarness(t, s)
	h.mem = pressureMem()
	h.procs = []types.ProcStat{
		{PID: 40, Comm: "com.android.system_server", OomAdj: 10, RSSPages: 200},
		{PID: 41, Comm: "app.foo", OomAdj: 10, RSSPages: 200},
	}

	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(h.killed) != 1 || h.killed[0] != 41 {
		t.Fatalf("killable tier must precede protected tiers, got %v", h.killed)
	}
}

func TestProtectedTiersActedOnWhenNothingElseQualifies(t *testing.T) {
	s := basicSettings()
	s.UserEnabled = true
	s.SystemEnabled = true
	s.ProtectUser = []string{"browser"}
	s.ProtectSystem = []string{"systemd"}
	h := newHarness(t, s)
	h.mem = pressureMem()
	h.procs = []types.ProcStat{
		{PID: 50, Comm: "systemd-journal", OomAdj: 5, RSSPages: 400},
		{PID: 51, Comm: "browser-main", OomAdj: 5, RSSPages: 100},
	}

	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(h.killed) != 1 || h.killed[0] != 51 {
		t.Fatalf("protected-user tier must precede protected-system, got %v", h.killed)
	}
	if len(h.reports) != 1 || h.reports[0].Tier != types.TierProtectedUser {
		t.Fatalf("unexpected tier in report: %+v", h.reports)
	}
}

func TestOneVictimPerPass(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{
		{PID: 60, Comm: "a", OomAdj: 5, RSSPages: 100},
		{PID: 61, Comm: "b", OomAdj: 6, RSSPages: 100},
		{PID: 62, Comm: "c", OomAdj: 7, RSSPages: 100},
	}

	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(h.killed) != 1 {
		t.Fatalf("expected exactly one kill per pass, got %v", h.killed)
	}
}

func TestDebounceBlocksUntilDeadline(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{{PID: 70, Comm: "victim", OomAdj: 5, RSSPages: 100}}

	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("first evaluate failed: %v", err)
	}
	if len(h.killed) != 1 {
		t.Fatalf("expected a kill, got %v", h.killed)
	}

	h.clock.advance(500 * time.Millisecond)
	got, err := h.reaper.Evaluate(true, 32)
	if err != nil {
		t.Fatalf("debounced evaluate failed: %v", err)
	}
	if got != 0 {
		t.Fatalf("debounced pass should return 0, got %d", got)
	}
	if h.scans != 1 || len(h.killed) != 1 {
		t.Fatalf("debounced pass must not scan or kill (scans=%d kills=%v)", h.scans, h.killed)
	}

	// Lazy expiry: once the grace window lapses the next pass may act.
	h.clock.advance(time.Second)
	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("post-expiry evaluate failed: %v", err)
	}
	if len(h.killed) != 2 {
		t.Fatalf("expected a second kill after expiry, got %v", h.killed)
	}
}

func TestExitNotificationClearsDebounce(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{{PID: 80, Comm: "victim", OomAdj: 5, RSSPages: 100}}

	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("first evaluate failed: %v", err)
	}

	// An unrelated exit changes nothing.
	h.reaper.OnProcessExit(9999)
	if got, _ := h.reaper.Evaluate(true, 32); got != 0 {
		t.Fatalf("unrelated exit must not clear the window, got %d", got)
	}

	h.reaper.OnProcessExit(80)
	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("post-exit evaluate failed: %v", err)
	}
	if len(h.killed) != 2 {
		t.Fatalf("exit notification should allow the very next pass to kill, got %v", h.killed)
	}
}

func TestPendingReportsOpenWindowOnly(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{{PID: 90, Comm: "victim", OomAdj: 5, RSSPages: 100}}

	if _, ok := h.reaper.Pending(); ok {
		t.Fatal("no pending death expected before any kill")
	}
	if _, err := h.reaper.Evaluate(true, 32); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if pid, ok := h.reaper.Pending(); !ok || pid != 90 {
		t.Fatalf("expected pending pid 90, got %d ok=%t", pid, ok)
	}
	h.clock.advance(2 * time.Second)
	if _, ok := h.reaper.Pending(); ok {
		t.Fatal("expired window should not report pending")
	}
}

func TestDryRunSelectsWithoutSignalling(t *testing.T) {
	s := basicSettings()
	s.DryRun = true
	h := newHarness(t, s)
	h.mem = pressureMem()
	h.procs = []types.ProcStat{{PID: 100, Comm: "victim", OomAdj: 5, RSSPages: 100}}

	got, err := h.reaper.Evaluate(true, 32)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(h.killed) != 0 {
		t.Fatalf("dry run must not signal, got %v", h.killed)
	}
	if len(h.reports) != 1 || !h.reports[0].DryRun {
		t.Fatalf("dry run should still report the victim: %+v", h.reports)
	}
	if got != 400 {
		t.Fatalf("dry run still returns the optimistic estimate, got %d", got)
	}
	// The death window opens even without a signal, keeping passes paced.
	if pid, ok := h.reaper.Pending(); !ok || pid != 100 {
		t.Fatalf("expected pending pid 100, got %d ok=%t", pid, ok)
	}
}

func TestSetSettingsTakesEffectNextPass(t *testing.T) {
	h := newHarness(t, basicSettings())
	h.mem = pressureMem()
	h.procs = []types.ProcStat{{PID: 110, Comm: "victim", OomAdj: 5, RSSPages: 100}}

	h.reaper.SetSettings(Settings{
		Thresholds: []types.Threshold{{MinFree: 100, Adj: 0}},
	})
	got, err := h.reaper.Evaluate(true, 32)
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(h.killed) != 0 {
		t.Fatalf("tighter floor should mean no pressure, got kills %v", h.killed)
	}
	if got != 500 {
		t.Fatalf("expected baseline 500, got %d", got)
	}
}
