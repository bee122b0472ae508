package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Connection types.
const (
	ConnWiFi     = "wifi"
	ConnEthernet = "ethernet"
	ConnNone     = "none"
	ConnUnknown  = "unknown"
)

// DefaultRouteProbe is dialed over UDP to learn which local address the
// kernel would route through. No packet is sent.
const DefaultRouteProbe = "8.8.8.8:80"

var wifiPrefixes = []string{"wl", "wlan", "wifi", "air", "ath"}

// Interfaces inspects the host's network interfaces.
type Interfaces struct {
	RouteProbe string

	// Overridable for tests.
	outboundIP func(ctx context.Context, target string) (net.IP, error)
	list       func() ([]net.Interface, error)
	addrs      func(net.Interface) ([]net.Addr, error)
	wireless   func(name string) bool
	signal     func(name string) SignalResult
}

func NewInterfaces() *Interfaces {
	return &Interfaces{RouteProbe: DefaultRouteProbe}
}

// Connection reports the active connection. reachable mirrors the latency
// probe and may be nil when it was not attempted.
func (n *Interfaces) Connection(ctx context.Context, reachable *bool) ConnInfo {
	name, err := n.defaultInterface(ctx)
	if err != nil {
		return ConnInfo{Type: ConnNone, IsConnected: false, IsInternetReachable: reachable}
	}
	return ConnInfo{
		Type:                connType(name, n.isWireless(name)),
		Interface:           name,
		IsConnected:         true,
		IsInternetReachable: reachable,
	}
}

// Signal reads the signal strength of the default interface when it is a
// wireless one.
func (n *Interfaces) Signal(ctx context.Context) SignalResult {
	name, err := n.defaultInterface(ctx)
	if err != nil {
		return SignalResult{Err: err}
	}
	if connType(name, n.isWireless(name)) != ConnWiFi {
		return SignalResult{Err: fmt.Errorf("interface %s is not wireless", name)}
	}
	if n.signal != nil {
		return n.signal(name)
	}
	return readSignal(name)
}

func (n *Interfaces) isWireless(name string) bool {
	if n.wireless != nil {
		return n.wireless(name)
	}
	return isWireless(name)
}

func (n *Interfaces) defaultInterface(ctx context.Context) (string, error) {
	target := n.RouteProbe
	if target == "" {
		target = DefaultRouteProbe
	}
	outbound := n.outboundIP
	if outbound == nil {
		outbound = dialOutboundIP
	}
	local, err := outbound(ctx, target)
	if err != nil {
		return "", err
	}

	list := n.list
	if list == nil {
		list = net.Interfaces
	}
	addrsOf := n.addrs
	if addrsOf == nil {
		addrsOf = func(i net.Interface) ([]net.Addr, error) { return i.Addrs() }
	}
	ifaces, err := list()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		addrs, _ := addrsOf(iface)
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil && ip.Equal(local) {
				return iface.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no interface owns %s", local)
}

func dialOutboundIP(ctx context.Context, target string) (net.IP, error) {
	d := net.Dialer{Timeout: 500 * time.Millisecond}
	conn, err := d.DialContext(ctx, "udp", target)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if ua, ok := conn.LocalAddr().(*net.UDPAddr); ok && ua.IP != nil {
		return ua.IP, nil
	}
	return nil, fmt.Errorf("unexpected local address %s", conn.LocalAddr())
}

func connType(name string, wireless bool) string {
	if name == "" {
		return ConnUnknown
	}
	if wireless {
		return ConnWiFi
	}
	lower := strings.ToLower(name)
	for _, p := range wifiPrefixes {
		if strings.HasPrefix(lower, p) {
			return ConnWiFi
		}
	}
	return ConnEthernet
}
