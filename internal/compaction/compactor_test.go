package compaction

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sharedlog/internal/codec"
	"sharedlog/internal/dirtyset"
	"sharedlog/internal/segment"
)

func TestCompactor_DropsPendingAndShrinksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")

	h, err := segment.Open(path, segment.DefaultConfig(), dirtyset.New(), nil)
	if err != nil {
		t.Fatalf("segment.Open: %v", err)
	}
	for i := uint64(0); i < 10; i++ {
		if _, err := h.Append(&codec.LogEntry{
			GlobalAddress: int64(i),
			DataType:      codec.DataTypeData,
			Data:          make([]byte, 256),
		}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	for i := uint64(0); i < 5; i++ {
		if err := h.RecordPendingTrim(i); err != nil {
			t.Fatalf("RecordPendingTrim(%d): %v", i, err)
		}
	}
	pending := h.PendingNotTrimmed()
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat before compaction: %v", err)
	}

	c := New(true, nil)
	if err := c.Compact(path, pending); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	after, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat after compaction: %v", err)
	}
	if after.Size() >= before.Size() {
		t.Errorf("size after compaction = %d, want < %d", after.Size(), before.Size())
	}

	if _, err := os.Stat(path + ".copy"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("leftover .copy file after successful compaction, stat err = %v", err)
	}

	h2, err := segment.Open(path, segment.DefaultConfig(), dirtyset.New(), nil)
	if err != nil {
		t.Fatalf("reopen after compaction: %v", err)
	}
	defer h2.Close()

	for i := uint64(0); i < 5; i++ {
		if !h2.Trimmed(i) {
			t.Errorf("address %d not trimmed after compaction", i)
		}
		if _, err := h2.ReadAt(i); !errors.Is(err, segment.ErrUnknownAddress) {
			t.Errorf("ReadAt(%d) after compaction err = %v, want ErrUnknownAddress", i, err)
		}
	}
	for i := uint64(5); i < 10; i++ {
		if _, err := h2.ReadAt(i); err != nil {
			t.Errorf("ReadAt(%d) after compaction: %v", i, err)
		}
	}
}
