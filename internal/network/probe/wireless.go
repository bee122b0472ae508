package probe

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// parseProcWireless extracts the signal level in dBm for iface from the
// contents of /proc/net/wireless. When iface is empty the first listed
// interface is used.
func parseProcWireless(r io.Reader, iface string) (name string, dbm int, ok bool) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		head, rest, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		head = strings.TrimSpace(head)
		if head == "" || strings.ContainsAny(head, " |") {
			// Header rows.
			continue
		}
		if iface != "" && head != iface {
			continue
		}
		// status, link, level, noise, ...
		fields := strings.Fields(rest)
		if len(fields) < 3 {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[2], "."), 64)
		if err != nil {
			continue
		}
		v := int(level)
		// Some drivers report unsigned levels offset by 256.
		if v > 0 && v <= 255 {
			v -= 256
		}
		return head, v, true
	}
	return "", 0, false
}
