package report

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/srodi/lowmemd/pkg/types"
)

// Reclaim pass metrics
var (
	ScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowmemd_scans_total",
			Help: "Total number of reclaim passes that scanned the process table",
		},
	)

	NoPressureTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowmemd_no_pressure_total",
			Help: "Total number of reclaim passes that found no threshold matched",
		},
	)

	DebounceSkipsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lowmemd_debounce_skips_total",
			Help: "Total number of reclaim passes skipped while a victim's death window was open",
		},
	)

	MinAdj = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lowmemd_min_adj",
			Help: "Active oom_adj cutoff of the last pass (16 means no pressure)",
		},
	)

	ReclaimablePages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lowmemd_reclaimable_pages",
			Help: "Reclaimable-page estimate returned by the last pass",
		},
	)
)

// Kill metrics
var (
	KillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lowmemd_kills_total",
			Help: "Total number of victims signalled, by tier",
		},
		[]string{"tier"},
	)

	LastKillTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lowmemd_last_kill_timestamp",
			Help: "Unix time of the most recent kill",
		},
	)

	LastKillPages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lowmemd_last_kill_pages",
			Help: "Resident size in pages of the most recent victim",
		},
	)
)

// RecordKill updates the kill metrics from one report.
func RecordKill(r types.KillReport) {
	KillsTotal.WithLabelValues(r.Tier.String()).Inc()
	LastKillTimestamp.Set(float64(r.When.Unix()))
	LastKillPages.Set(float64(r.RSSPages))
}
