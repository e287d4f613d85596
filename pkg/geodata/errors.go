package geodata

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies import failures.
type Kind int

const (
	// KindNone is the kind of a nil error.
	KindNone Kind = iota

	// KindUnsupportedFeature marks valid input using a feature the decoders do not model,
	// such as multipatch geometry or a rotated world file.
	KindUnsupportedFeature

	// KindCorruptData marks input that violates its format: bad magic numbers, truncated
	// records, grids with too few or too many values, tables shorter than their geometry.
	KindCorruptData

	// KindIOFailure marks stream and transport errors.
	KindIOFailure

	// KindCancelled marks a decode stopped at the caller's request. It is not a failure.
	KindCancelled
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindUnsupportedFeature:
		return "UnsupportedFeature"
	case KindCorruptData:
		return "CorruptData"
	case KindIOFailure:
		return "IOFailure"
	case KindCancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	// ErrNoMatch is returned by a probe that declines a resource. It is not an error
	// condition for the import as a whole.
	ErrNoMatch = errors.New("geodata: no matching format")

	// ErrCancelled is returned by decoders when progress reporting requested a stop.
	ErrCancelled = errors.New("geodata: import cancelled")
)

// Error is a classified decode failure.
type Error struct {
	Kind Kind
	Op   string // decoder step, e.g. "shapefile: read record 12"
	Msg  string
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Corrupt returns a KindCorruptData error.
func Corrupt(op, format string, args ...interface{}) error {
	return &Error{Kind: KindCorruptData, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Unsupported returns a KindUnsupportedFeature error.
func Unsupported(op, format string, args ...interface{}) error {
	return &Error{Kind: KindUnsupportedFeature, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IOFailure wraps err as a KindIOFailure error. It returns nil for a nil err.
func IOFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindIOFailure, Op: op, Err: err}
}

// KindOf classifies err. Errors that carry no kind are treated as I/O failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindIOFailure
}
