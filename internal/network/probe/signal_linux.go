//go:build linux

package probe

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	procWirelessPath = "/proc/net/wireless"
	sysClassNet      = "/sys/class/net"
)

func readSignal(iface string) SignalResult {
	f, err := os.Open(procWirelessPath)
	if err != nil {
		return SignalResult{Err: err}
	}
	defer f.Close()
	if _, dbm, ok := parseProcWireless(f, iface); ok {
		return SignalResult{Dbm: dbm, Available: true}
	}
	if iface == "" {
		return SignalResult{Err: fmt.Errorf("no wireless interface")}
	}
	return SignalResult{Err: fmt.Errorf("interface %s has no wireless stats", iface)}
}

func isWireless(iface string) bool {
	if iface == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(sysClassNet, iface, "wireless"))
	return err == nil
}
