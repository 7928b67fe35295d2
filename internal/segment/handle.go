// Package segment implements the per-segment file triple: a data file,
// a confirmed-trim sidecar and a pending-trim sidecar, plus the
// in-memory index rebuilt from them on open.
package segment

import (
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"sharedlog/internal/codec"
	"sharedlog/internal/dirtyset"
	"sharedlog/internal/logerrors"
)

// AddressMetaData is the in-memory index value for one global address:
// enough to positioned-read its entry back off disk without re-parsing
// the envelope.
type AddressMetaData struct {
	Checksum int32
	Length   int32
	Offset   int64
}

// Stats summarises a Handle's address sets for the compactor's trigger
// check.
type Stats struct {
	Known             int
	Trimmed           int
	PendingNotTrimmed int
}

// Handle is one segment's open file triple, its in-memory index, and the
// lock that serialises appends against reads of the live size. It is
// created lazily by the cache on first access to any address in its
// segment and kept open for the process lifetime.
type Handle struct {
	mu sync.RWMutex

	path    string
	log     *os.File
	trimmed *os.File
	pending *os.File

	verify bool

	known      map[uint64]AddressMetaData
	trimmedSet map[uint64]struct{}
	pendingSet map[uint64]struct{}

	dirty  *dirtyset.Set
	logger *zap.SugaredLogger
}

// Open opens (creating if absent) the three files backing path, writes
// the header on a brand new data file, and otherwise verifies the
// existing header and replays the address space and trim sidecars.
func Open(path string, cfg Config, dirty *dirtyset.Set, logger *zap.SugaredLogger) (*Handle, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, logerrors.WrapIO("open segment data file", path, err)
	}

	trimmedFile, err := os.OpenFile(path+".trimmed", os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		logFile.Close()
		return nil, logerrors.WrapIO("open trimmed sidecar", path+".trimmed", err)
	}

	pendingFile, err := os.OpenFile(path+".pending", os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		logFile.Close()
		trimmedFile.Close()
		return nil, logerrors.WrapIO("open pending sidecar", path+".pending", err)
	}

	known, err := openDataFile(logFile, path, cfg)
	if err != nil {
		logFile.Close()
		trimmedFile.Close()
		pendingFile.Close()
		return nil, err
	}

	trimmedSet, err := loadTrimSet(trimmedFile)
	if err != nil {
		logFile.Close()
		trimmedFile.Close()
		pendingFile.Close()
		return nil, logerrors.New(logerrors.CodeDataCorruption, "malformed trimmed sidecar").WithSegment(path).WithCause(err)
	}
	pendingSet, err := loadTrimSet(pendingFile)
	if err != nil {
		logFile.Close()
		trimmedFile.Close()
		pendingFile.Close()
		return nil, logerrors.New(logerrors.CodeDataCorruption, "malformed pending sidecar").WithSegment(path).WithCause(err)
	}

	return &Handle{
		path:       path,
		log:        logFile,
		trimmed:    trimmedFile,
		pending:    pendingFile,
		verify:     cfg.VerifyChecksum,
		known:      known,
		trimmedSet: trimmedSet,
		pendingSet: pendingSet,
		dirty:      dirty,
		logger:     logger,
	}, nil
}

// openDataFile writes a fresh header on an empty file, or verifies and
// replays an existing one, truncating away any torn tail so future
// appends land exactly where valid data ended.
func openDataFile(f *os.File, path string, cfg Config) (map[uint64]AddressMetaData, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, logerrors.WrapIO("stat segment data file", path, err)
	}

	if info.Size() == 0 {
		header := codec.Header{Version: codec.Version, VerifyChecksum: cfg.VerifyChecksum}
		if err := codec.EncodeHeader(f, header); err != nil {
			return nil, logerrors.WrapIO("write segment header", path, err)
		}
		return make(map[uint64]AddressMetaData), nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, logerrors.WrapIO("seek segment data file", path, err)
	}

	header, err := codec.DecodeHeader(f, true)
	if err != nil {
		return nil, logerrors.New(logerrors.CodeDataCorruption, "segment header is corrupt").WithSegment(path).WithCause(err)
	}
	if header.Version != codec.Version {
		return nil, logerrors.New(logerrors.CodeVersionMismatch, "segment header version mismatch").WithSegment(path)
	}
	if header.VerifyChecksum != cfg.VerifyChecksum {
		return nil, logerrors.New(logerrors.CodeNoChecksum, "segment checksum mode does not match store configuration").WithSegment(path)
	}

	headerEnd, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, logerrors.WrapIO("seek past segment header", path, err)
	}

	known, validSize, err := readAddressSpace(f, headerEnd, cfg.VerifyChecksum)
	if err != nil {
		return nil, logerrors.New(logerrors.CodeDataCorruption, "segment entry stream is corrupt").WithSegment(path).WithCause(err)
	}

	if validSize < info.Size() {
		if err := f.Truncate(validSize); err != nil {
			return nil, logerrors.WrapIO("truncate torn segment tail", path, err)
		}
	}

	return known, nil
}

// Append writes entry framed to the end of the data file and indexes it.
// It fails with Overwrite if the address was already written or trimmed.
func (h *Handle) Append(entry *codec.LogEntry) (AddressMetaData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	addr := uint64(entry.GlobalAddress)
	if _, ok := h.known[addr]; ok {
		return AddressMetaData{}, logerrors.New(logerrors.CodeOverwrite, "address already written").WithAddress(addr).WithSegment(h.path)
	}
	if _, ok := h.trimmedSet[addr]; ok {
		return AddressMetaData{}, logerrors.New(logerrors.CodeOverwrite, "address already trimmed").WithAddress(addr).WithSegment(h.path)
	}

	pos, err := h.log.Seek(0, io.SeekEnd)
	if err != nil {
		return AddressMetaData{}, logerrors.WrapIO("seek segment data file", h.path, err)
	}

	meta, err := codec.EncodeEntryMeta(h.log, entry)
	if err != nil {
		return AddressMetaData{}, logerrors.WrapIO("append entry", h.path, err).WithAddress(addr)
	}

	amd := AddressMetaData{
		Checksum: meta.Checksum,
		Length:   meta.Length,
		Offset:   pos + 2 + codec.MetadataSize,
	}
	h.known[addr] = amd
	h.dirty.Mark(h.log)
	return amd, nil
}

// ReadAt returns the decoded entry at addr, or ErrUnknownAddress if it is
// not in this segment's index. A read of an already-indexed address
// takes no lock on the written byte range itself — only the index
// lookup is guarded.
func (h *Handle) ReadAt(addr uint64) (*codec.LogEntry, error) {
	h.mu.RLock()
	meta, ok := h.known[addr]
	verify := h.verify
	h.mu.RUnlock()
	if !ok {
		return nil, ErrUnknownAddress
	}

	buf := make([]byte, meta.Length)
	if _, err := h.log.ReadAt(buf, meta.Offset); err != nil {
		return nil, logerrors.WrapIO("read entry", h.path, err).WithAddress(addr).WithOffset(meta.Offset)
	}
	if verify && codec.Checksum(buf) != meta.Checksum {
		return nil, logerrors.New(logerrors.CodeDataCorruption, "checksum mismatch on read").WithAddress(addr).WithSegment(h.path).WithOffset(meta.Offset)
	}

	entry, err := codec.DecodeEntryPayload(buf)
	if err != nil {
		return nil, logerrors.New(logerrors.CodeDataCorruption, "malformed entry payload").WithAddress(addr).WithSegment(h.path).WithCause(err)
	}
	return entry, nil
}

// RecordPendingTrim appends a TrimEntry to the pending sidecar. It is a
// no-op if addr has never been written to this segment (trimming ahead
// of a writer is silently dropped, not remembered), and a no-op if
// addr is already pending.
func (h *Handle) RecordPendingTrim(addr uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.known[addr]; !ok {
		return nil
	}
	if _, ok := h.pendingSet[addr]; ok {
		return nil
	}

	entry := codec.TrimEntry{Checksum: codec.ChecksumAddress(int64(addr)), Address: int64(addr)}
	if err := codec.EncodeTrimEntry(h.pending, entry); err != nil {
		return logerrors.WrapIO("record pending trim", h.path, err).WithAddress(addr)
	}
	h.pendingSet[addr] = struct{}{}
	h.dirty.Mark(h.pending)
	return nil
}

// RecordTrimmed appends a TrimEntry to the confirmed sidecar and adds
// addr to trimmedAddresses. An address already confirmed is a no-op.
// The compactor does not go through this method: it appends to the
// sidecar file directly and the next open reloads it.
func (h *Handle) RecordTrimmed(addr uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.trimmedSet[addr]; ok {
		return nil
	}
	entry := codec.TrimEntry{Checksum: codec.ChecksumAddress(int64(addr)), Address: int64(addr)}
	if err := codec.EncodeTrimEntry(h.trimmed, entry); err != nil {
		return logerrors.WrapIO("record trimmed", h.path, err).WithAddress(addr)
	}
	h.trimmedSet[addr] = struct{}{}
	h.dirty.Mark(h.trimmed)
	return nil
}

// Pending reports whether addr is in pendingTrims.
func (h *Handle) Pending(addr uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.pendingSet[addr]
	return ok
}

// Trimmed reports whether addr is in trimmedAddresses.
func (h *Handle) Trimmed(addr uint64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.trimmedSet[addr]
	return ok
}

// Stats snapshots the counts the compactor's trigger check needs.
func (h *Handle) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pnt := 0
	for a := range h.pendingSet {
		if _, ok := h.trimmedSet[a]; !ok {
			pnt++
		}
	}
	return Stats{Known: len(h.known), Trimmed: len(h.trimmedSet), PendingNotTrimmed: pnt}
}

// PendingNotTrimmed returns the addresses that are pending but not yet
// confirmed-trimmed, the set a compaction pass should drop and promote.
func (h *Handle) PendingNotTrimmed() []uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]uint64, 0, len(h.pendingSet))
	for a := range h.pendingSet {
		if _, ok := h.trimmedSet[a]; !ok {
			out = append(out, a)
		}
	}
	return out
}

// Path returns the segment's data file path.
func (h *Handle) Path() string { return h.path }

// Close fsyncs and closes all three files.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for _, f := range []*os.File{h.log, h.trimmed, h.pending} {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = logerrors.WrapIO("fsync on close", h.path, err)
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = logerrors.WrapIO("close", h.path, err)
		}
	}
	return firstErr
}
