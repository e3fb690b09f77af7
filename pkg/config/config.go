package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/srodi/lowmemd/pkg/types"
)

// defaultCost matches the historical shrinker seeks value: a hint of how
// eagerly this reclaim source should run relative to others. Values above
// baseCost stretch the poll interval, values below shrink it.
const (
	defaultCost = 16
	baseCost    = 16
)

const defaultInterval = time.Second

// Duration wraps time.Duration so intervals can be written as "3s" or "1m"
// in the YAML file.
type Duration time.Duration

// UnmarshalYAML parses a duration string such as "500ms".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back in time.Duration notation.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// NameList is a set of process-name substrings with an enable switch.
type NameList struct {
	Enabled bool     `yaml:"enabled"`
	Names   []string `yaml:"names"`
}

// Config is the on-disk configuration of the daemon. The adj and minfree
// lists are parallel and independently resizable; only the shared prefix is
// ever used.
type Config struct {
	Adj              []int    `yaml:"adj"`
	MinFree          []uint64 `yaml:"minfree"`
	DonotkillProc    NameList `yaml:"donotkill_proc"`
	DonotkillSysproc NameList `yaml:"donotkill_sysproc"`
	DebugLevel       int      `yaml:"debug_level"`
	Cost             int      `yaml:"cost"`
	Interval         Duration `yaml:"interval"`
	ListenAddr       string   `yaml:"listen_addr"`
	DryRun           bool     `yaml:"dry_run"`
}

// Default returns the built-in tables: kill adj>=0 below 6MB free, adj>=1
// below 8MB, adj>=6 below 16MB, adj>=12 below 64MB (4k pages).
func Default() *Config {
	return &Config{
		Adj:        []int{0, 1, 6, 12},
		MinFree:    []uint64{3 * 512, 2 * 1024, 4 * 1024, 16 * 1024},
		DebugLevel: 2,
		Cost:       defaultCost,
		Interval:   Duration(defaultInterval),
	}
}

// Load reads the YAML file at path. A missing file is not an error: the
// defaults apply until the operator writes one.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects tables the reaper cannot walk meaningfully. Mismatched
// list lengths are fine (the shorter prefix wins); a minfree list that is
// not ascending is not.
func (c *Config) Validate() error {
	prev := uint64(0)
	for i, floor := range c.MinFree {
		if i > 0 && floor < prev {
			return fmt.Errorf("minfree[%d]=%d below minfree[%d]=%d, list must be ascending", i, floor, i-1, prev)
		}
		prev = floor
	}
	for i, adj := range c.Adj {
		if adj < types.AdjMin || adj > types.AdjMax {
			return fmt.Errorf("adj[%d]=%d outside [%d,%d]", i, adj, types.AdjMin, types.AdjMax)
		}
	}
	if c.Cost <= 0 {
		return fmt.Errorf("cost must be positive, got %d", c.Cost)
	}
	return nil
}

// Thresholds zips the adj and minfree lists into the table the reaper
// walks, truncated to the shorter of the two.
func (c *Config) Thresholds() []types.Threshold {
	n := len(c.Adj)
	if len(c.MinFree) < n {
		n = len(c.MinFree)
	}
	table := make([]types.Threshold, 0, n)
	for i := 0; i < n; i++ {
		table = append(table, types.Threshold{MinFree: c.MinFree[i], Adj: c.Adj[i]})
	}
	return table
}

// PollInterval scales the configured interval by the cost hint so that an
// expensive reclaim source is consulted less often.
func (c *Config) PollInterval() time.Duration {
	interval := time.Duration(c.Interval)
	if interval <= 0 {
		interval = defaultInterval
	}
	cost := c.Cost
	if cost <= 0 {
		cost = defaultCost
	}
	return interval * time.Duration(cost) / baseCost
}
