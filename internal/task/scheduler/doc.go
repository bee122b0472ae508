// Package scheduler runs named background tasks on a recurring trigger.
//
// Task bodies are defined once with Define. RegisterIfNeeded then asks the
// platform policy for permission and installs an interval (or cron) trigger
// for the task. Registrations that should outlive the process are persisted
// and restored by the next Start.
//
// Each invocation is overlap-guarded, recovers panics and records an Outcome
// in a bounded history.
package scheduler
