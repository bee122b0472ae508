package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinimumInterval is the smallest trigger interval a registration may use.
const MinimumInterval = 5 * time.Minute

var (
	ErrUndefined = errors.New("scheduler: task not defined")
	// ErrNoData lets an action report that it ran but produced nothing new.
	ErrNoData = errors.New("scheduler: no new data")
	// ErrSkipped lets an action report that it declined to run, for example
	// because the same work is already in progress elsewhere.
	ErrSkipped = errors.New("scheduler: run skipped")
)

// Config controls the scheduler.
type Config struct {
	Enabled bool
	// Timezone is an IANA name used for cron specs; empty means Local.
	Timezone       string
	HistorySize    int
	DefaultTimeout time.Duration
	// StartupSpread delays the first interval trigger by a random jitter.
	StartupSpread bool
}

// Action is a task body.
type Action func(ctx context.Context) error

// Status is the platform's answer to "may this process run background work".
type Status string

const (
	StatusAvailable  Status = "available"
	StatusRestricted Status = "restricted"
	StatusDenied     Status = "denied"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StatusAvailable:
		return StatusAvailable, nil
	case StatusRestricted, StatusDenied:
		return st, nil
	default:
		return "", fmt.Errorf("unknown background status %q", s)
	}
}

// Policy reports the background execution status.
type Policy interface {
	Status(ctx context.Context) Status
}

// StaticPolicy always reports the same status.
type StaticPolicy Status

func (p StaticPolicy) Status(context.Context) Status { return Status(p) }

// State is the registration state of a task.
type State string

const (
	StateUnregistered State = "unregistered"
	StateRegistered   State = "registered"
)

// Options describe a registration.
type Options struct {
	// MinimumInterval between runs; clamped to at least MinimumInterval.
	MinimumInterval time.Duration
	// Schedule optionally overrides the interval with a cron expression or
	// interval string (see ParseSchedule).
	Schedule        string
	StopOnTerminate bool
	StartOnBoot     bool
	Timeout         time.Duration
}

// DefaultOptions are the options used for the network monitor task.
func DefaultOptions() Options {
	return Options{MinimumInterval: MinimumInterval, StopOnTerminate: false, StartOnBoot: true}
}

// Outcome is the binary result reported for each invocation.
type Outcome string

const (
	OutcomeNewData Outcome = "new_data"
	OutcomeNoData  Outcome = "no_data"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Run is one recorded invocation.
type Run struct {
	Name     string        `json:"name"`
	Trigger  string        `json:"trigger"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
}

// ScheduleInfo describes one installed registration.
type ScheduleInfo struct {
	Name            string    `json:"name"`
	Spec            string    `json:"spec"`
	StopOnTerminate bool      `json:"stop_on_terminate"`
	StartOnBoot     bool      `json:"start_on_boot"`
	RegisteredAt    time.Time `json:"registered_at"`
	Running         bool      `json:"running"`
	Next            time.Time `json:"next,omitempty"`
	Prev            time.Time `json:"prev,omitempty"`
}

// Snapshot is a diagnostic view of the scheduler.
type Snapshot struct {
	Enabled   bool           `json:"enabled"`
	Started   bool           `json:"started"`
	Status    Status         `json:"status"`
	Timezone  string         `json:"timezone"`
	Schedules []ScheduleInfo `json:"schedules"`
	History   []Run          `json:"history"`
}
