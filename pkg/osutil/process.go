package osutil

import "github.com/shirou/gopsutil/v4/process"

// IsProcessAlive reports whether pid refers to a live process. Lookup
// failures read as not-alive, which suits liveness polling loops.
func IsProcessAlive(pid int) bool {
	alive, _ := process.PidExists(int32(pid))
	return alive
}
