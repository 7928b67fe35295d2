// Package compaction rewrites a full segment in place, dropping
// confirmed-for-removal entries and promoting their addresses into the
// segment's trimmed sidecar.
package compaction

import (
	"bufio"
	"errors"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/natefinch/atomic"
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"sharedlog/internal/codec"
)

// Compactor rewrites segments. It holds no per-segment state: every
// Compact call is given the pending addresses to drop and operates on
// the path directly, so it has no lifecycle of its own beyond logging.
type Compactor struct {
	verify bool
	logger *zap.SugaredLogger
}

// New returns a Compactor that verifies entry checksums while rewriting
// iff verify is true, matching the store's configured checksum mode.
func New(verify bool, logger *zap.SugaredLogger) *Compactor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Compactor{verify: verify, logger: logger}
}

// Compact rewrites the segment at path, dropping every entry whose
// global address is in pending, then appends each pending address to
// path+".trimmed" as a confirmed trim. The rewrite is published via an
// atomic rename (path+".copy" -> path): a crash before the rename
// completes leaves the original segment untouched, and a leftover
// ".copy" file is discarded unconditionally on the next store open.
func (c *Compactor) Compact(path string, pending []uint64) error {
	dropped := make(map[int64]struct{}, len(pending))
	for _, a := range pending {
		dropped[int64(a)] = struct{}{}
	}

	src, err := os.Open(path)
	if err != nil {
		return pkgerrors.Wrap(err, "compaction: open source segment")
	}
	defer src.Close()

	srcInfo, err := src.Stat()
	if err != nil {
		return pkgerrors.Wrap(err, "compaction: stat source segment")
	}

	header, err := codec.DecodeHeader(src, true)
	if err != nil {
		return pkgerrors.Wrap(err, "compaction: decode header")
	}

	copyPath := path + ".copy"
	dst, err := os.Create(copyPath)
	if err != nil {
		return pkgerrors.Wrap(err, "compaction: create rewrite file")
	}
	w := bufio.NewWriter(dst)
	if err := codec.EncodeHeader(w, header); err != nil {
		dst.Close()
		return pkgerrors.Wrap(err, "compaction: write header")
	}

	kept := 0
	for {
		entry, err := codec.DecodeEntry(src, c.verify)
		if errors.Is(err, codec.ErrEndOfSegment) {
			break
		}
		if err != nil {
			dst.Close()
			return pkgerrors.Wrap(err, "compaction: decode entry")
		}
		if _, drop := dropped[entry.GlobalAddress]; drop {
			continue
		}
		if err := codec.EncodeEntry(w, entry); err != nil {
			dst.Close()
			return pkgerrors.Wrap(err, "compaction: write entry")
		}
		kept++
	}

	if err := w.Flush(); err != nil {
		dst.Close()
		return pkgerrors.Wrap(err, "compaction: flush rewrite file")
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return pkgerrors.Wrap(err, "compaction: fsync rewrite file")
	}
	dstInfo, err := dst.Stat()
	if err != nil {
		dst.Close()
		return pkgerrors.Wrap(err, "compaction: stat rewrite file")
	}
	if err := dst.Close(); err != nil {
		return pkgerrors.Wrap(err, "compaction: close rewrite file")
	}

	if len(pending) > 0 {
		if err := appendTrimmed(path+".trimmed", pending); err != nil {
			return err
		}
	}

	if err := atomic.ReplaceFile(copyPath, path); err != nil {
		return pkgerrors.Wrap(err, "compaction: atomic rename")
	}

	c.logger.Infow("segment compacted",
		"path", path,
		"kept", kept,
		"dropped", len(pending),
		"before", humanize.Bytes(uint64(srcInfo.Size())),
		"after", humanize.Bytes(uint64(dstInfo.Size())),
	)
	return nil
}

func appendTrimmed(trimmedPath string, pending []uint64) error {
	f, err := os.OpenFile(trimmedPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return pkgerrors.Wrap(err, "compaction: open trimmed sidecar")
	}
	for _, addr := range pending {
		entry := codec.TrimEntry{Checksum: codec.ChecksumAddress(int64(addr)), Address: int64(addr)}
		if err := codec.EncodeTrimEntry(f, entry); err != nil {
			f.Close()
			return pkgerrors.Wrap(err, "compaction: append trimmed entry")
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return pkgerrors.Wrap(err, "compaction: fsync trimmed sidecar")
	}
	return pkgerrors.Wrap(f.Close(), "compaction: close trimmed sidecar")
}
