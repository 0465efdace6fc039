// Package perr defines the execution pool's error kinds (spec §7) and
// wraps them with github.com/pkg/errors so a failure keeps a stack
// trace from the point it was raised, not just from where it was
// logged.
package perr

import "github.com/pkg/errors"

// Kind classifies a pool-level error.
type Kind string

const (
	// ConfigInvalid marks bad parameters at construction time.
	ConfigInvalid Kind = "config_invalid"
	// SpawnFailed marks an OS refusal to create a child process.
	SpawnFailed Kind = "spawn_failed"
	// StdioFailed marks a failure to open/redirect stdio.
	StdioFailed Kind = "stdio_failed"
	// MemoryProbeUnavailable marks an OS without process-memory
	// accounting; the pool degrades to unlimited mode.
	MemoryProbeUnavailable Kind = "memory_probe_unavailable"
	// DeadlineExceeded marks a global join() timeout.
	DeadlineExceeded Kind = "deadline_exceeded"
	// Terminated marks a policy-driven termination (timeout or
	// memory eviction), not a spawn or config error.
	Terminated Kind = "terminated"
)

// Error is a pool-level error tagged with a Kind, suitable for
// attaching to a Job/Task and surfacing via the observation endpoint.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.err.Error()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.err }

// New builds a Kind-tagged error from a message, with a stack trace
// captured at the call site.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, err: errors.New(msg)}
}

// Wrap attaches a Kind to an existing error, preserving its stack (or
// adding one if cause didn't carry one already).
func Wrap(kind Kind, cause error, msg string) *Error {
	if cause == nil {
		return New(kind, msg)
	}
	return &Error{Kind: kind, err: errors.Wrap(cause, msg)}
}

// Is reports whether err is a pool Error of the given Kind.
func Is(err error, kind Kind) bool {
	var pe *Error
	if !errors.As(err, &pe) {
		return false
	}
	return pe.Kind == kind
}
