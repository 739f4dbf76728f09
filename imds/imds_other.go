//go:build !linux && !windows

package imds

// probeHostIsEC2 never attempts the network on OSes other than Linux and
// Windows, matching the original's "#if defined(__linux) || defined(WIN32)"
// scoping of the sysfs/registry heuristics.
func probeHostIsEC2() bool {
	return false
}
