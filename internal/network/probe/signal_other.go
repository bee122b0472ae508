//go:build !linux

package probe

import "errors"

var errSignalUnsupported = errors.New("signal strength not supported on this platform")

func readSignal(string) SignalResult { return SignalResult{Err: errSignalUnsupported} }

func isWireless(string) bool { return false }
