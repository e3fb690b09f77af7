//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/srodi/lowmemd/pkg/config"
	"github.com/srodi/lowmemd/pkg/notify"
	"github.com/srodi/lowmemd/pkg/reaper"
	"github.com/srodi/lowmemd/pkg/report"
	"github.com/srodi/lowmemd/pkg/types"
)

const defaultConfigPath = "/etc/lowmemd/config.yaml"

// nrToScanHint stands in for the scan batch the kernel would pass a
// shrinker; it only affects logging.
const nrToScanHint = 32

const killLogSize = 32

type runConfig struct {
	configPath  string
	interval    time.Duration
	metricsAddr string
	watch       bool
	dryRun      bool
}

func parseFlags() runConfig {
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	interval := flag.Duration("interval", 0, "poll interval override (e.g. 3s); 0 uses the configured value")
	metricsAddr := flag.String("metrics-addr", "", "listen address for /metrics (e.g. :9347); overrides the configured value")
	watch := flag.Bool("watch", false, "render a live status view instead of plain logs")
	dryRun := flag.Bool("dry-run", false, "select victims but never signal them")
	flag.Parse()

	return runConfig{
		configPath:  *configPath,
		interval:    *interval,
		metricsAddr: *metricsAddr,
		watch:       *watch,
		dryRun:      *dryRun,
	}
}

func settingsFrom(cfg *config.Config, flags runConfig) reaper.Settings {
	return reaper.Settings{
		Thresholds:    cfg.Thresholds(),
		ProtectUser:   cfg.DonotkillProc.Names,
		ProtectSystem: cfg.DonotkillSysproc.Names,
		UserEnabled:   cfg.DonotkillProc.Enabled,
		SystemEnabled: cfg.DonotkillSysproc.Enabled,
		DebugLevel:    cfg.DebugLevel,
		DryRun:        cfg.DryRun || flags.dryRun,
	}
}

func main() {
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := reaper.New(settingsFrom(cfg, flags))
	killLog := report.NewKillLog(killLogSize)
	r.OnKill(killLog.Add)

	// Exit notifications close the death window early; without them the
	// reaper still recovers once the grace interval lapses.
	listener, err := notify.NewListener(r.OnProcessExit)
	if err != nil {
		log.Printf("proc connector unavailable, relying on death-window timeout: %v", err)
	} else {
		defer listener.Close()
		go func() {
			if err := listener.Run(); err != nil {
				log.Printf("proc event listener stopped: %v", err)
			}
		}()
	}

	intervalCh := make(chan time.Duration, 1)
	err = config.Watch(ctx, flags.configPath, func(next *config.Config) {
		r.SetSettings(settingsFrom(next, flags))
		select {
		case intervalCh <- next.PollInterval():
		default:
		}
		log.Printf("configuration reloaded from %s", flags.configPath)
	})
	if err != nil {
		log.Printf("config watch disabled: %v", err)
	}

	metricsAddr := cfg.ListenAddr
	if flags.metricsAddr != "" {
		metricsAddr = flags.metricsAddr
	}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
		defer server.Close()
	}

	// SIGUSR1 forces a pass outside the regular cadence, for external
	// components that notice allocation pressure before we do.
	demand := make(chan os.Signal, 1)
	signal.Notify(demand, syscall.SIGUSR1)

	if flags.watch {
		cleanup := enableSingleView()
		defer cleanup()
	}

	interval := cfg.PollInterval()
	if flags.interval > 0 {
		interval = flags.interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runPass := func() {
		estimate, err := r.Evaluate(true, nrToScanHint)
		if err != nil {
			log.Printf("evaluate failed: %v", err)
			return
		}
		if flags.watch {
			if err := renderWatch(r, killLog, estimate, interval); err != nil {
				log.Printf("render failed: %v", err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-demand:
			runPass()
		case next := <-intervalCh:
			if flags.interval == 0 && next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-ticker.C:
			runPass()
		}
	}
}

func tierLabel(t types.Tier) string {
	if t == types.TierKillable {
		return "-"
	}
	return t.String()
}
