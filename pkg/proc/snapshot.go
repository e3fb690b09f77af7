package proc

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/srodi/lowmemd/pkg/types"
)

// procRoot allows tests to build a fake process tree in a temp dir.
var procRoot = "/proc"

// Snapshot enumerates the process table. Entries that vanish mid-scan or
// lack a comm, oom adj, or statm file are skipped: a process with no
// address space or no signal state is not a candidate for anything.
// Enumeration order is the readdir order of /proc, which is stable within
// one pass.
func Snapshot() ([]types.ProcStat, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", procRoot, err)
	}

	procs := make([]types.ProcStat, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid <= 0 {
			continue
		}
		stat, ok := readProc(pid)
		if !ok {
			continue
		}
		procs = append(procs, stat)
	}
	return procs, nil
}

func readProc(pid int) (types.ProcStat, bool) {
	dir := filepath.Join(procRoot, strconv.Itoa(pid))

	comm, err := os.ReadFile(filepath.Join(dir, "comm"))
	if err != nil {
		return types.ProcStat{}, false
	}
	name := strings.TrimSpace(string(bytes.TrimRight(comm, "\n")))
	if name == "" {
		name = fmt.Sprintf("pid-%d", pid)
	}

	adj, ok := readOomAdj(dir)
	if !ok {
		return types.ProcStat{}, false
	}

	rss, ok := readRSSPages(dir)
	if !ok {
		return types.ProcStat{}, false
	}

	return types.ProcStat{PID: pid, Comm: name, OomAdj: adj, RSSPages: rss}, true
}

// readOomAdj prefers the legacy oom_adj file and falls back to scaling
// oom_score_adj into the same [-17,15] range on kernels that dropped it.
func readOomAdj(dir string) (int, bool) {
	if data, err := os.ReadFile(filepath.Join(dir, "oom_adj")); err == nil {
		if adj, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			return adj, true
		}
	}
	data, err := os.ReadFile(filepath.Join(dir, "oom_score_adj"))
	if err != nil {
		return 0, false
	}
	score, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return adjFromScoreAdj(score), true
}

func adjFromScoreAdj(score int) int {
	if score >= 0 {
		return score * types.AdjMax / 1000
	}
	return score * -types.AdjMin / 1000
}

// readRSSPages pulls the resident set size from statm, already in pages.
func readRSSPages(dir string) (uint64, bool) {
	data, err := os.ReadFile(filepath.Join(dir, "statm"))
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(data))
	if len(fields) < 2 {
		return 0, false
	}
	rss, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return rss, true
}
