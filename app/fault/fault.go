package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure at an I/O boundary so callers can decide whether to
// degrade, treat state as empty, or abort the run.
type Kind int

const (
	// TransientFetch covers network failures: feed, image, article page and notification.
	TransientFetch Kind = iota + 1
	// CorruptState covers unreadable or invalid JSON store and index files.
	CorruptState
	// WriteFailure covers filesystem write failures.
	WriteFailure
	// ConfigMissing covers absent required configuration. Fatal for the run.
	ConfigMissing
)

func (k Kind) String() string {
	switch k {
	case TransientFetch:
		return "transient_fetch"
	case CorruptState:
		return "corrupt_state"
	case WriteFailure:
		return "write_failure"
	case ConfigMissing:
		return "config_missing"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func Fetch(op, target string, err error) *Error {
	return New(TransientFetch, op, target, err)
}

func Corrupt(path string, err error) *Error {
	return New(CorruptState, "failed to decode", path, err)
}

func Write(path string, err error) *Error {
	return New(WriteFailure, "failed to write", path, err)
}

func Missing(what string) *Error {
	return New(ConfigMissing, what+" is required", "", nil)
}

// Is reports whether any error in err's chain is a fault of the given kind.
func Is(err error, kind Kind) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind == kind
	}
	return false
}

// KindOf returns the kind of the first fault in err's chain, or zero.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
