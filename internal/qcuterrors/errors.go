// Package qcuterrors defines the export core's closed failure taxonomy
// (spec §7). The dispatcher switches on Kind, never on stderr substrings.
package qcuterrors

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories from spec §7.
type Kind string

const (
	KindInvalidTimeline      Kind = "invalid_timeline"       // 1: invariants broken
	KindMissingDependency    Kind = "missing_dependency"     // 2: ffmpeg/ffprobe absent, unreadable input
	KindIncompatibleFilter   Kind = "incompatible_filter"    // 3: Mode C validation probe failed
	KindSubprocessCrash      Kind = "subprocess_crash"       // 4: ffmpeg non-zero exit
	KindTimeout              Kind = "timeout"                // 5a
	KindCancelled            Kind = "cancelled"              // 5b
	KindIO                   Kind = "io_error"               // 6: disk full, permission
	KindFrameSource          Kind = "frame_source_error"     // 7: Mode D renderer rejected a frame
)

// Downgradable reports whether this failure kind permits the dispatcher to
// fall through to the next, more expensive strategy, rather than surfacing
// a terminal outcome immediately.
func (k Kind) Downgradable() bool {
	switch k {
	case KindIncompatibleFilter, KindSubprocessCrash:
		return true
	default:
		return false
	}
}

// Error is the export core's structured error type: a stable Kind plus a
// human summary, optional stderr tail, and wrapped cause.
type Error struct {
	Kind       Kind
	Summary    string
	StderrTail string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Summary, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Summary)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, summary string) *Error {
	return &Error{Kind: kind, Summary: summary}
}

func Wrap(kind Kind, summary string, cause error) *Error {
	return &Error{Kind: kind, Summary: summary, Cause: cause}
}

func WithStderr(kind Kind, summary, stderrTail string, cause error) *Error {
	return &Error{Kind: kind, Summary: summary, StderrTail: stderrTail, Cause: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is an
// *Error, defaulting to KindSubprocessCrash — the dispatcher's default
// downgrade path — for opaque errors such as a raw *exec.ExitError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSubprocessCrash
}
