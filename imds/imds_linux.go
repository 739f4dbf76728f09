//go:build linux

package imds

// probeHostIsEC2 on Linux is just the sysfs hypervisor probe.
func probeHostIsEC2() bool {
	return probeLinuxHypervisor()
}
