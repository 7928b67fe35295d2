// Package store implements the public LogStore API: the
// append/read/trim/sync/compact/close surface that routes a LogAddress
// to the segment that backs it.
package store

import (
	"errors"
	"os"
	"path/filepath"

	"sharedlog/internal/address"
	"sharedlog/internal/codec"
	"sharedlog/internal/compaction"
	"sharedlog/internal/dirtyset"
	"sharedlog/internal/logerrors"
	"sharedlog/internal/segment"
	"sharedlog/internal/segmentcache"
)

// Store is the durable segmented log. It is safe for concurrent use by
// multiple callers.
type Store struct {
	cfg       Config
	cache     *segmentcache.Cache
	dirty     *dirtyset.Set
	compactor *compaction.Compactor
}

// Open prepares logDir for use: it creates the directory if missing,
// discards any leftover compaction ".copy" files from a torn
// compaction, and eagerly opens and recovers every existing ".log"
// file so a corrupt header or entry stream is reported now, at
// construction, rather than deferred to whichever caller happens to
// touch that segment first.
func Open(logDir string, opts ...Option) (*Store, error) {
	cfg := defaultConfig(logDir)
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, logerrors.WrapIO("mkdir log dir", logDir, err)
	}

	if err := discardTornCompactions(logDir); err != nil {
		return nil, err
	}

	s := &Store{
		cfg:       cfg,
		cache:     segmentcache.New(),
		dirty:     dirtyset.New(),
		compactor: compaction.New(cfg.VerifyChecksum, cfg.Logger),
	}

	if err := s.loadExistingSegments(logDir); err != nil {
		return nil, err
	}

	cfg.Logger.Infow("log store opened", "dir", logDir, "verifyChecksum", cfg.VerifyChecksum)
	return s, nil
}

func discardTornCompactions(logDir string) error {
	copies, err := filepath.Glob(filepath.Join(logDir, "*.copy"))
	if err != nil {
		return logerrors.WrapIO("glob copy files", logDir, err)
	}
	for _, c := range copies {
		if err := os.Remove(c); err != nil && !os.IsNotExist(err) {
			return logerrors.WrapIO("discard torn compaction", c, err)
		}
	}
	return nil
}

// loadExistingSegments opens every ".log" file already on disk through
// the same cache GetOrOpen path a live Append/Read would use, so
// header verification and entry-stream replay (and the corruption they
// can surface) happen once, up front, instead of lazily per segment.
func (s *Store) loadExistingSegments(logDir string) error {
	matches, err := filepath.Glob(filepath.Join(logDir, "*.log"))
	if err != nil {
		return logerrors.WrapIO("glob segment files", logDir, err)
	}
	for _, path := range matches {
		if _, err := s.openPath(path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) open(addr address.Address) (*segment.Handle, error) {
	return s.openPath(addr.Path(s.cfg.LogDir))
}

func (s *Store) openPath(path string) (*segment.Handle, error) {
	return s.cache.GetOrOpen(path, func() (*segment.Handle, error) {
		return segment.Open(path, segment.Config{VerifyChecksum: s.cfg.VerifyChecksum}, s.dirty, s.cfg.Logger)
	})
}

// Append writes entry at addr. It fails with an Overwrite error if addr
// is already known or already trimmed in its segment. Not guaranteed
// durable until Sync.
func (s *Store) Append(addr address.Address, entry *codec.LogEntry) error {
	h, err := s.open(addr)
	if err != nil {
		return err
	}
	entry.GlobalAddress = int64(addr.Value)
	_, err = h.Append(entry)
	return err
}

// Read returns the entry at addr, nil if addr is unknown, or a Trimmed
// error if addr is pending trim (even before compaction has run).
func (s *Store) Read(addr address.Address) (*codec.LogEntry, error) {
	h, err := s.open(addr)
	if err != nil {
		return nil, err
	}
	if h.Pending(addr.Value) {
		return nil, logerrors.New(logerrors.CodeTrimmed, "address is pending trim").WithAddress(addr.Value).WithSegment(h.Path())
	}

	entry, err := h.ReadAt(addr.Value)
	if errors.Is(err, segment.ErrUnknownAddress) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Trim records a pending-trim intent for addr. It is a no-op if addr is
// unknown to its segment (trimming ahead of a writer is silently
// dropped, not remembered) or already pending.
func (s *Store) Trim(addr address.Address) error {
	h, err := s.open(addr)
	if err != nil {
		return err
	}
	return h.RecordPendingTrim(addr.Value)
}

// Sync fsyncs every file that has received a write since the previous
// Sync call.
func (s *Store) Sync() error {
	for _, f := range s.dirty.Drain() {
		if err := f.Sync(); err != nil {
			return logerrors.WrapIO("fsync", f.Name(), err)
		}
	}
	return nil
}

// Compact rewrites every cached segment that is full and has
// accumulated at least TrimThreshold pending-not-yet-confirmed trims.
// It is synchronous with the caller; a background schedule is supplied
// separately by internal/retention.
func (s *Store) Compact() error {
	var firstErr error
	s.cache.Range(func(path string, h *segment.Handle) bool {
		stats := h.Stats()
		if stats.Known+stats.Trimmed != address.RecordsPerLogFile {
			return true
		}
		if stats.PendingNotTrimmed < s.cfg.TrimThreshold {
			return true
		}

		pending := h.PendingNotTrimmed()
		if err := s.compactor.Compact(path, pending); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return true
		}
		s.cache.Evict(path)
		return true
	})
	return firstErr
}

// Release is reserved for caller-side buffer pools; the store itself
// holds no per-read resource that needs releasing.
func (s *Store) Release(addr address.Address, entry *codec.LogEntry) {}

// Close fsyncs and closes every open segment and drops the cache.
func (s *Store) Close() error {
	if err := s.Sync(); err != nil {
		return err
	}
	return s.cache.CloseAll()
}
