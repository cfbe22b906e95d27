//go:build linux

package hostinfo

import (
	"time"

	"golang.org/x/sys/unix"
)

// Load averages from sysinfo(2) are fixed-point with 16 fractional bits.
const loadScale = 1 << 16

func read() Info {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return Info{}
	}
	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return Info{
		Available:   true,
		TotalMemory: uint64(si.Totalram) * unit,
		FreeMemory:  (uint64(si.Freeram) + uint64(si.Bufferram)) * unit,
		Load1:       float64(si.Loads[0]) / loadScale,
		Uptime:      time.Duration(si.Uptime) * time.Second,
	}
}
