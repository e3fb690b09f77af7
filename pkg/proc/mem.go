package proc

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/srodi/lowmemd/pkg/types"
)

// procMeminfo allows tests to point the parser at a fixture file.
var procMeminfo = "/proc/meminfo"

var pageSize = uint64(os.Getpagesize())

// ReadMemStat parses /proc/meminfo into page counts. File-backed pages are
// approximated as Cached+Buffers, the closest userspace view of
// NR_FILE_PAGES.
func ReadMemStat() (types.MemStat, error) {
	f, err := os.Open(procMeminfo)
	if err != nil {
		return types.MemStat{}, err
	}
	defer f.Close()

	var stat types.MemStat
	var cached, buffers uint64
	wanted := map[string]*uint64{
		"MemFree":        &stat.FreePages,
		"Buffers":        &buffers,
		"Cached":         &cached,
		"Shmem":          &stat.ShmemPages,
		"Active(anon)":   &stat.ActiveAnon,
		"Inactive(anon)": &stat.InactiveAnon,
		"Active(file)":   &stat.ActiveFile,
		"Inactive(file)": &stat.InactiveFile,
	}

	remaining := len(wanted)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && remaining > 0 {
		line := scanner.Text()
		name, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		dst, ok := wanted[name]
		if !ok {
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) < 1 {
			return types.MemStat{}, fmt.Errorf("unexpected meminfo line %q", line)
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return types.MemStat{}, fmt.Errorf("parsing meminfo line %q: %w", line, err)
		}
		*dst = kb * 1024 / pageSize
		remaining--
	}
	if err := scanner.Err(); err != nil {
		return types.MemStat{}, err
	}
	if remaining > 0 {
		return types.MemStat{}, fmt.Errorf("meminfo missing %d expected fields", remaining)
	}

	stat.FilePages = cached + buffers
	return stat, nil
}
