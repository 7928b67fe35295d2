// Package logerrors defines the store's error taxonomy: Overwrite,
// Trimmed, DataCorruption, VersionMismatch, NoChecksum and IO, each
// carrying enough context (segment path, offset, address) for a caller
// to decide a retry or hole-fill policy.
package logerrors

import (
	"errors"
	"fmt"
)

// Code classifies a StoreError.
type Code string

const (
	CodeOverwrite       Code = "OVERWRITE"
	CodeTrimmed         Code = "TRIMMED"
	CodeDataCorruption  Code = "DATA_CORRUPTION"
	CodeVersionMismatch Code = "VERSION_MISMATCH"
	CodeNoChecksum      Code = "NO_CHECKSUM"
	CodeIO              Code = "IO"
)

// StoreError is the concrete error type raised by every layer of the
// store. Build one with New and attach context with the With... methods.
type StoreError struct {
	code    Code
	message string
	cause   error
	segment string
	offset  int64
	address uint64
	hasAddr bool
}

// New creates a StoreError of the given code.
func New(code Code, message string) *StoreError {
	return &StoreError{code: code, message: message}
}

// WithCause attaches the underlying error, if any.
func (e *StoreError) WithCause(cause error) *StoreError {
	e.cause = cause
	return e
}

// WithSegment attaches the segment's data file path.
func (e *StoreError) WithSegment(path string) *StoreError {
	e.segment = path
	return e
}

// WithOffset attaches the byte offset at which the error occurred.
func (e *StoreError) WithOffset(offset int64) *StoreError {
	e.offset = offset
	return e
}

// WithAddress attaches the global address involved.
func (e *StoreError) WithAddress(addr uint64) *StoreError {
	e.address = addr
	e.hasAddr = true
	return e
}

// Code reports the error's classification.
func (e *StoreError) Code() Code { return e.code }

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.code, e.message)
	if e.segment != "" {
		msg += fmt.Sprintf(" segment=%s", e.segment)
	}
	if e.hasAddr {
		msg += fmt.Sprintf(" address=%d", e.address)
	}
	if e.offset != 0 {
		msg += fmt.Sprintf(" offset=%d", e.offset)
	}
	if e.cause != nil {
		msg += fmt.Sprintf(": %v", e.cause)
	}
	return msg
}

// Unwrap exposes the underlying cause to errors.Is/errors.As.
func (e *StoreError) Unwrap() error { return e.cause }

// Is reports whether err is a StoreError of the given code.
func Is(err error, code Code) bool {
	var se *StoreError
	if !errors.As(err, &se) {
		return false
	}
	return se.code == code
}

func IsOverwrite(err error) bool       { return Is(err, CodeOverwrite) }
func IsTrimmed(err error) bool         { return Is(err, CodeTrimmed) }
func IsDataCorruption(err error) bool  { return Is(err, CodeDataCorruption) }
func IsVersionMismatch(err error) bool { return Is(err, CodeVersionMismatch) }
func IsNoChecksum(err error) bool      { return Is(err, CodeNoChecksum) }
func IsIO(err error) bool              { return Is(err, CodeIO) }

// WrapIO wraps a filesystem error as a StoreError of kind IO.
func WrapIO(op string, path string, cause error) *StoreError {
	return New(CodeIO, op).WithSegment(path).WithCause(cause)
}
