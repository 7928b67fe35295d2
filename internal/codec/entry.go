// Package codec implements the on-disk framing for the segmented log:
// the metadata envelope, the log header record, entry records and trim
// records, all guarded by CRC-32C checksums.
package codec

import "github.com/google/uuid"

// DataType tags the kind of payload a LogEntry carries.
type DataType uint8

const (
	DataTypeData DataType = iota
	DataTypeEmpty
	DataTypeHole
	DataTypeRankOnly
)

func (t DataType) String() string {
	switch t {
	case DataTypeData:
		return "DATA"
	case DataTypeEmpty:
		return "EMPTY"
	case DataTypeHole:
		return "HOLE"
	case DataTypeRankOnly:
		return "RANK_ONLY"
	default:
		return "UNKNOWN"
	}
}

// LogEntry is the decoded form of a single framed record.
type LogEntry struct {
	GlobalAddress    int64
	DataType         DataType
	Data             []byte
	Rank             int64
	Commit           bool
	Streams          []uuid.UUID
	LogicalAddresses map[uuid.UUID]int64
	Backpointers     map[uuid.UUID]int64
}

// Header is the once-per-segment record written at offset 0.
type Header struct {
	Version        uint32
	VerifyChecksum bool
}

// TrimEntry is the length-delimited record appended to the pending and
// trimmed sidecar files.
type TrimEntry struct {
	Checksum int32
	Address  int64
}
