package report

import (
	"sync"

	"github.com/srodi/lowmemd/pkg/types"
)

// KillLog keeps the most recent kill reports for the watch view.
type KillLog struct {
	mu      sync.Mutex
	max     int
	entries []types.KillReport
}

// NewKillLog bounds the log at max entries; older ones are dropped.
func NewKillLog(max int) *KillLog {
	if max <= 0 {
		max = 1
	}
	return &KillLog{max: max}
}

// Add appends a report, evicting the oldest entry once full.
func (l *KillLog) Add(r types.KillReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, r)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
}

// Recent returns the logged reports, newest first.
func (l *KillLog) Recent() []types.KillReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.KillReport, len(l.entries))
	for i, r := range l.entries {
		out[len(out)-1-i] = r
	}
	return out
}
