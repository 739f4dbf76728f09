//go:build windows

package imds

import (
	"strings"

	"golang.org/x/sys/windows/registry"
)

// isWine reports whether the process is running under Wine, where the
// registry-reported machine product UUID isn't meaningful.
func isWine() bool {
	k, err := registry.OpenKey(registry.CURRENT_USER, `Software\Wine`, registry.QUERY_VALUE)
	if err != nil {
		return false
	}
	k.Close()
	return true
}

// machineProductUUID reads the Windows machine GUID, the closest stand-in
// available without linking CLSID-based WMI bindings for the product UUID.
func machineProductUUID() (string, error) {
	k, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Cryptography`, registry.QUERY_VALUE)
	if err != nil {
		return "", err
	}
	defer k.Close()
	guid, _, err := k.GetStringValue("MachineGuid")
	return guid, err
}

// probeHostIsEC2 treats the machine as EC2 if its product UUID starts with
// "EC2" or the reordered little-endian form matches, and also when the UUID
// cannot be read (the network is then tried). Under Wine, the UUID isn't
// trustworthy, so fall back to the Linux sysfs probe instead.
func probeHostIsEC2() bool {
	if isWine() {
		return probeLinuxHypervisor()
	}
	uuid, err := machineProductUUID()
	if err != nil {
		return true
	}
	if len(uuid) >= 3 && strings.EqualFold(uuid[:3], "EC2") {
		return true
	}
	if len(uuid) >= 8 && uuid[4] == '2' && uuid[6] == 'E' && uuid[7] == 'C' {
		return true
	}
	return false
}
