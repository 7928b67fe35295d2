package segment

import (
	"errors"
	"io"
	"os"

	"sharedlog/internal/codec"
)

// countingReader wraps an *os.File so recovery can recover the exact
// byte offset of the record it is currently decoding, the same
// bookkeeping Append does by Seek-ing to SEEK_END before a write.
type countingReader struct {
	f   *os.File
	pos int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.f.Read(p)
	c.pos += int64(n)
	return n, err
}

// readAddressSpace replays every framed entry record from the reader's
// current position and rebuilds knownAddresses. startOffset is the
// absolute file position f is already seeked to (just past the
// header), so the AddressMetaData.Offset values it records line up
// with the absolute offsets Append uses for ReadAt. A delimiter
// mismatch or truncated read ends recovery cleanly at the last
// fully-valid record; it returns the absolute byte offset recovery
// stopped at so the caller can truncate away a torn tail. A decode
// error *after* a valid delimiter is DataCorruption.
func readAddressSpace(f *os.File, startOffset int64, verify bool) (map[uint64]AddressMetaData, int64, error) {
	cr := &countingReader{f: f, pos: startOffset}
	known := make(map[uint64]AddressMetaData)

	for {
		recordStart := cr.pos
		entry, meta, err := codec.DecodeEntryMeta(cr, verify)
		if errors.Is(err, codec.ErrEndOfSegment) {
			return known, recordStart, nil
		}
		if err != nil {
			return nil, 0, err
		}

		addr := uint64(entry.GlobalAddress)
		known[addr] = AddressMetaData{
			Checksum: meta.Checksum,
			Length:   meta.Length,
			Offset:   cr.pos - int64(meta.Length),
		}
	}
}

// loadTrimSet drains a length-delimited TrimEntry stream (the .trimmed
// or .pending sidecar) into a set of addresses.
func loadTrimSet(f *os.File) (map[uint64]struct{}, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	set := make(map[uint64]struct{})
	for {
		entry, err := codec.DecodeTrimEntry(f)
		if errors.Is(err, io.EOF) {
			return set, nil
		}
		if err != nil {
			return nil, err
		}
		set[uint64(entry.Address)] = struct{}{}
	}
}
