package probe

import (
	"strings"
	"testing"
)

const procWirelessSample = `Inter-| sta-|   Quality        |   Discarded packets               | Missed | WE
 face | tus | link level noise |  nwid  crypt   frag  retry   misc | beacon | 22
wlp2s0: 0000   54.  -56.  -256        0      0      0      0      0        0
 wlan1: 0000   30.  -80.  -256        0      0      0      0      0        0
`

func TestParseProcWireless(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		input    string
		iface    string
		wantName string
		wantDbm  int
		wantOK   bool
	}{
		{name: "first interface", input: procWirelessSample, wantName: "wlp2s0", wantDbm: -56, wantOK: true},
		{name: "named interface", input: procWirelessSample, iface: "wlan1", wantName: "wlan1", wantDbm: -80, wantOK: true},
		{name: "missing interface", input: procWirelessSample, iface: "eth0"},
		{name: "header only", input: strings.Join(strings.Split(procWirelessSample, "\n")[:2], "\n")},
		{name: "unsigned level", input: "wlan0: 0000 40. 200. 0 0 0 0 0 0 0\n", wantName: "wlan0", wantDbm: -56, wantOK: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			name, dbm, ok := parseProcWireless(strings.NewReader(tc.input), tc.iface)
			if ok != tc.wantOK || name != tc.wantName || dbm != tc.wantDbm {
				t.Fatalf("got (%q, %d, %v), want (%q, %d, %v)", name, dbm, ok, tc.wantName, tc.wantDbm, tc.wantOK)
			}
		})
	}
}
