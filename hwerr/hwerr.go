// Package hwerr is the error taxonomy shared by the peripheral drivers.
//
// Every driver failure carries a Kind so callers can decide whether to retry,
// degrade or give up without parsing messages:
//
//	if errors.Is(err, hwerr.Checksum) { ... }
package hwerr

import (
	"github.com/pkg/errors"
)

// Kind classifies a driver failure. It is comparable and implements error so
// it can be used directly as an errors.Is target.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// Timeout means a protocol handshake or bit decode exceeded its bound.
	Timeout Kind = "timeout"
	// Checksum means a frame failed its integrity check.
	Checksum Kind = "checksum mismatch"
	// DeviceNotFound means an identity probe failed at every candidate address.
	DeviceNotFound Kind = "device not found"
	// Bus means the underlying transfer failed.
	Bus Kind = "bus error"
	// Bounds means coordinates fell outside the panel.
	Bounds Kind = "out of bounds"
	// Invalid means the device answered with data that cannot be a reading.
	Invalid Kind = "invalid reading"
)

// Error is a classified driver failure.
type Error struct {
	Kind Kind
	Op   string // e.g. "bmp280: read"
	Err  error  // cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns a classified error with a formatted detail message.
func New(k Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: k, Op: op, Err: errors.Errorf(format, args...)}
}

// Wrap classifies err. It returns nil when err is nil.
func Wrap(k Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Err: err}
}

// Wrapf classifies err and prefixes it with a formatted message.
func Wrapf(k Kind, op string, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Err: errors.Wrapf(err, format, args...)}
}

// KindOf returns the Kind carried by err, or "" when err is nil or
// unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if k, ok := err.(Kind); ok {
		return k
	}
	return ""
}
