// Package probe implements the individual network measurements: latency,
// download and upload throughput, location, signal strength and connection
// info.
//
// Probes absorb ordinary failures (network unreachable, permission denied)
// and report them through an explicit OK/Available flag instead of an error
// return, so a failed probe is never confused with a measured zero.
package probe
