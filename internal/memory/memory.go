// Package memory watches the process footprint and sheds memory when
// crawling pushes past the configured watermark.
package memory

import (
	"log"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/shirou/gopsutil/v4/process"
)

// Monitor checks resident set size against a watermark between units of
// crawl work.
type Monitor struct {
	limitMB uint64
	proc    *process.Process
}

// New creates a Monitor. A zero limit disables checking.
func New(limitMB uint64) *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Printf("Memory monitoring unavailable: %v", err)
		proc = nil
	}
	return &Monitor{limitMB: limitMB, proc: proc}
}

// RSSMB returns the current resident set size in megabytes, or 0 when
// the platform offers no reading.
func (m *Monitor) RSSMB() uint64 {
	if m.proc == nil {
		return 0
	}
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return 0
	}
	return info.RSS / (1 << 20)
}

// Check compares the footprint against the watermark and forces a
// collection when it is exceeded. Returns true when memory pressure was
// detected, so callers can pause before the next source.
func (m *Monitor) Check() bool {
	if m.limitMB == 0 {
		return false
	}
	rss := m.RSSMB()
	if rss < m.limitMB {
		return false
	}
	log.Printf("Memory watermark exceeded (%d MB >= %d MB), forcing collection", rss, m.limitMB)
	ForceGC()
	return true
}

// ForceGC runs a full collection and returns freed pages to the OS.
func ForceGC() {
	runtime.GC()
	debug.FreeOSMemory()
}
