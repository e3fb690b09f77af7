package proc

import (
	"os"
	"path/filepath"
	"testing"
)

const meminfoFixture = `MemTotal:       16315292 kB
MemFree:          204800 kB
MemAvailable:    8000000 kB
Buffers:           40960 kB
Cached:           409600 kB
SwapCached:            0 kB
Active:          4000000 kB
Inactive:        3000000 kB
Active(anon):     819200 kB
Inactive(anon):   409600 kB
Active(file):     204800 kB
Inactive(file):   102400 kB
Shmem:             81920 kB
`

func TestReadMemStatParsesPages(t *testing.T) {
	t.Cleanup(func() {
		procMeminfo = "/proc/meminfo"
		pageSize = uint64(os.Getpagesize())
	})
	pageSize = 4096

	path := filepath.Join(t.TempDir(), "meminfo")
	if err := os.WriteFile(path, []byte(meminfoFixture), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	procMeminfo = path

	stat, err := ReadMemStat()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	// kB * 1024 / 4096 = kB / 4
	if stat.FreePages != 204800/4 {
		t.Fatalf("unexpected FreePages: %d", stat.FreePages)
	}
	if stat.FilePages != (409600+40960)/4 {
		t.Fatalf("FilePages should be Cached+Buffers, got %d", stat.FilePages)
	}
	if stat.ShmemPages != 81920/4 {
		t.Fatalf("unexpected ShmemPages: %d", stat.ShmemPages)
	}
	wantReclaim := uint64(819200+409600+204800+102400) / 4
	if got := stat.ReclaimableEstimate(); got != wantReclaim {
		t.Fatalf("unexpected reclaimable estimate: got %d want %d", got, wantReclaim)
	}
	wantFile := uint64(409600+40960-81920) / 4
	if got := stat.EffectiveFile(); got != wantFile {
		t.Fatalf("unexpected effective file pages: got %d want %d", got, wantFile)
	}
}

func TestReadMemStatRejectsTruncatedFile(t *testing.T) {
	t.Cleanup(func() { procMeminfo = "/proc/meminfo" })

	path := filepath.Join(t.TempDir(), "meminfo")
	if err := os.WriteFile(path, []byte("MemFree: 1024 kB\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	procMeminfo = path

	if _, err := ReadMemStat(); err == nil {
		t.Fatal("expected error for meminfo missing fields")
	}
}
