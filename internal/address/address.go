// Package address resolves a LogAddress to the segment file family that
// backs it.
package address

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// RecordsPerLogFile is the number of consecutive addresses one segment
// covers. Segment number = address / RecordsPerLogFile.
const RecordsPerLogFile = 10000

// TrimThreshold is the default number of pending-trimmed addresses (25%
// of a segment's capacity) a segment must hold before the compactor
// considers it worth rewriting.
const TrimThreshold = RecordsPerLogFile / 4

// Address pairs a 64-bit global address with an optional stream scope.
// Two addresses with the same numeric value but different streams name
// different log positions in different segment file families.
type Address struct {
	Value  uint64
	Stream *uuid.UUID
}

// New builds an unscoped address.
func New(value uint64) Address {
	return Address{Value: value}
}

// NewStream builds a stream-scoped address.
func NewStream(value uint64, stream uuid.UUID) Address {
	return Address{Value: value, Stream: &stream}
}

// Segment returns the segment number this address falls in.
func (a Address) Segment() uint64 {
	return a.Value / RecordsPerLogFile
}

// Path returns the data-file path for the segment a belongs to, rooted at
// logDir. Sibling sidecar paths are TrimmedPath/PendingPath of the same
// value.
func (a Address) Path(logDir string) string {
	seg := a.Segment()
	if a.Stream == nil {
		return filepath.Join(logDir, fmt.Sprintf("%d.log", seg))
	}
	return filepath.Join(logDir, fmt.Sprintf("%s-%d.log", a.Stream.String(), seg))
}

// TrimmedPath returns the confirmed-trim sidecar path for a's segment.
func (a Address) TrimmedPath(logDir string) string {
	return a.Path(logDir) + ".trimmed"
}

// PendingPath returns the pending-trim sidecar path for a's segment.
func (a Address) PendingPath(logDir string) string {
	return a.Path(logDir) + ".pending"
}

// String renders the address for logging.
func (a Address) String() string {
	if a.Stream == nil {
		return fmt.Sprintf("%d", a.Value)
	}
	return fmt.Sprintf("%s:%d", a.Stream.String(), a.Value)
}
