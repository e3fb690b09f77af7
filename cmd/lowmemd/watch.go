//go:build linux

package main

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/srodi/lowmemd/pkg/proc"
	"github.com/srodi/lowmemd/pkg/reaper"
	"github.com/srodi/lowmemd/pkg/report"
	"github.com/srodi/lowmemd/pkg/types"
	"github.com/srodi/lowmemd/pkg/ui"
)

const watchTopK = 10

// renderWatch repaints the live status view after a pass: current memory
// counters, the active cutoff, the processes in the firing line, and the
// recent kill log.
func renderWatch(r *reaper.Reaper, killLog *report.KillLog, estimate uint64, interval time.Duration) error {
	mem, err := proc.ReadMemStat()
	if err != nil {
		return err
	}
	procs, err := proc.Snapshot()
	if err != nil {
		return err
	}
	minAdj := reaper.MinAdj(r.Thresholds(), mem)

	var buf bytes.Buffer
	buf.WriteString(ui.Banner())
	fmt.Fprintf(&buf, "lowmemd (press Ctrl+C to exit)\n")
	fmt.Fprintf(&buf, "Updated: %s | Interval: %v\n\n", time.Now().Format(time.RFC3339), interval)

	fmt.Fprintf(&buf, "Free: %d pages | File: %d pages | Reclaimable estimate: %d pages\n",
		mem.FreePages, mem.EffectiveFile(), estimate)
	if minAdj == types.AdjNoPressure {
		fmt.Fprintf(&buf, "Pressure: none (no threshold matched)\n")
	} else {
		fmt.Fprintf(&buf, "Pressure: active, killing adj >= %d\n", minAdj)
	}
	if pid, ok := r.Pending(); ok {
		fmt.Fprintf(&buf, "Pending death: pid %d\n", pid)
	}

	fmt.Fprintf(&buf, "\n[Top %d candidates]\n", watchTopK)
	cutoff := minAdj
	if cutoff == types.AdjNoPressure {
		cutoff = types.AdjMin // show the full firing order when idle
	}
	rows := report.TopCandidates(procs, cutoff, watchTopK)
	if len(rows) == 0 {
		fmt.Fprintln(&buf, "No eligible processes")
	} else {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PID\tCOMM\tADJ\tRSS(pages)")
		for _, row := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", row.PID, row.Comm, row.OomAdj, row.RSSPages)
		}
		tw.Flush()
	}

	fmt.Fprintf(&buf, "\n[Recent kills]\n")
	kills := killLog.Recent()
	if len(kills) == 0 {
		fmt.Fprintln(&buf, "No kills yet")
	} else {
		tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tPID\tCOMM\tADJ\tRSS(pages)\tTIER")
		for _, k := range kills {
			when := k.When.Format("15:04:05")
			if k.DryRun {
				when += " (dry)"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%d\t%d\t%s\n", when, k.PID, k.Comm, k.Adj, k.RSSPages, tierLabel(k.Tier))
		}
		tw.Flush()
	}

	clearScreen()
	fmt.Print(buf.String())
	return nil
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
}

func enableSingleView() func() {
	stdoutFD := int(os.Stdout.Fd())
	stdinFD := int(os.Stdin.Fd())
	if !term.IsTerminal(stdoutFD) {
		return func() {}
	}

	fmt.Print("\033[?1049h") // switch to alternate buffer
	fmt.Print("\033[?25l")   // hide cursor

	var restore []func()
	if term.IsTerminal(stdinFD) {
		if undoEcho, err := disableInputEcho(stdinFD); err != nil {
			log.Printf("unable to suppress stdin echo: %v", err)
		} else if undoEcho != nil {
			restore = append(restore, undoEcho)
		}
	}

	return func() {
		for i := len(restore) - 1; i >= 0; i-- {
			restore[i]()
		}
		fmt.Print("\033[?25h")   // show cursor
		fmt.Print("\033[?1049l") // restore main buffer
	}
}

// disableInputEcho turns off stdin echo so the alternate-screen view stays clean.
func disableInputEcho(fd int) (func(), error) {
	termState, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	updated := *termState
	updated.Lflag &^= unix.ECHO

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &updated); err != nil {
		return nil, err
	}

	return func() {
		_ = unix.IoctlSetTermios(fd, unix.TCSETS, termState)
	}, nil
}
