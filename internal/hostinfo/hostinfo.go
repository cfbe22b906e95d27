// Package hostinfo reports memory, load and uptime of the machine plexmon
// runs on.
package hostinfo

import (
	"runtime"
	"time"
)

// Info is a host snapshot. Fields the platform cannot provide are zero and
// Available is false.
type Info struct {
	Available   bool
	TotalMemory uint64
	FreeMemory  uint64
	Load1       float64
	Uptime      time.Duration
	CPUs        int
}

// UsedMemory returns TotalMemory minus FreeMemory.
func (i Info) UsedMemory() uint64 {
	if i.FreeMemory > i.TotalMemory {
		return 0
	}
	return i.TotalMemory - i.FreeMemory
}

// MemoryPercent returns used memory as a rounded percentage.
func (i Info) MemoryPercent() int {
	if i.TotalMemory == 0 {
		return 0
	}
	return int(float64(i.UsedMemory())/float64(i.TotalMemory)*100 + 0.5)
}

// Read samples the host.
func Read() Info {
	info := read()
	info.CPUs = runtime.NumCPU()
	return info
}
