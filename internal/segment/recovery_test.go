package segment

import (
	"os"
	"path/filepath"
	"testing"

	"sharedlog/internal/codec"
	"sharedlog/internal/dirtyset"
)

func TestOpen_ReopenRecoversAppendedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")

	h1, err := Open(path, DefaultConfig(), dirtyset.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := uint64(0); i < 5; i++ {
		if _, err := h1.Append(&codec.LogEntry{GlobalAddress: int64(i), DataType: codec.DataTypeData, Data: []byte("v")}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := h1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	h2, err := Open(path, DefaultConfig(), dirtyset.New(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer h2.Close()

	for i := uint64(0); i < 5; i++ {
		if _, err := h2.ReadAt(i); err != nil {
			t.Errorf("ReadAt(%d) after reopen: %v", i, err)
		}
	}
	if got := h2.Stats().Known; got != 5 {
		t.Errorf("Stats().Known after reopen = %d, want 5", got)
	}
}

func TestOpen_TruncatesTornTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")

	h1, err := Open(path, DefaultConfig(), dirtyset.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := h1.Append(&codec.LogEntry{GlobalAddress: 0, DataType: codec.DataTypeData, Data: []byte("v")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := h1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open for torn write: %v", err)
	}
	if _, err := f.Write([]byte{0x4C, 0x45, 0, 0, 0, 1}); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	f.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	tornSize := info.Size()

	h2, err := Open(path, DefaultConfig(), dirtyset.New(), nil)
	if err != nil {
		t.Fatalf("reopen after torn write: %v", err)
	}
	defer h2.Close()

	info2, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat after reopen: %v", err)
	}
	if info2.Size() >= tornSize {
		t.Errorf("file size after recovery = %d, want < %d (torn tail truncated)", info2.Size(), tornSize)
	}

	if _, err := h2.ReadAt(0); err != nil {
		t.Errorf("ReadAt(0) after recovery: %v", err)
	}

	if _, err := h2.Append(&codec.LogEntry{GlobalAddress: 1, DataType: codec.DataTypeData, Data: []byte("w")}); err != nil {
		t.Fatalf("Append after recovery: %v", err)
	}
	if _, err := h2.ReadAt(1); err != nil {
		t.Errorf("ReadAt(1) after post-recovery append: %v", err)
	}
}

func TestOpen_DetectsHeaderCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")

	h1, err := Open(path, DefaultConfig(), dirtyset.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h1.Close()

	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for header corruption: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, 0); err != nil {
		t.Fatalf("corrupt header byte: %v", err)
	}
	f.Close()

	_, err = Open(path, DefaultConfig(), dirtyset.New(), nil)
	if err == nil {
		t.Fatal("Open() on corrupted header returned nil error")
	}
}

func TestOpen_DetectsEntryChecksumCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.log")

	h1, err := Open(path, DefaultConfig(), dirtyset.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := h1.Append(&codec.LogEntry{GlobalAddress: 0, DataType: codec.DataTypeData, Data: []byte("payload")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	h1.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for payload corruption: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, info.Size()-1); err != nil {
		t.Fatalf("corrupt payload byte: %v", err)
	}
	f.Close()

	_, err = Open(path, DefaultConfig(), dirtyset.New(), nil)
	if err == nil {
		t.Fatal("Open() on corrupted entry checksum returned nil error")
	}
}
