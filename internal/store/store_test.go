package store

import (
	"os"
	"path/filepath"
	"testing"

	"sharedlog/internal/address"
	"sharedlog/internal/codec"
)

func TestStore_AppendReadRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	addr := address.New(1)
	entry := &codec.LogEntry{DataType: codec.DataTypeData, Data: []byte("hello")}
	if err := s.Append(addr, entry); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Read(addr)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil {
		t.Fatal("Read() = nil, want entry")
	}
	if string(got.Data) != "hello" {
		t.Errorf("Read().Data = %q, want %q", got.Data, "hello")
	}
}

func TestStore_ReadUnknownAddressIsNil(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	got, err := s.Read(address.New(5))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != nil {
		t.Errorf("Read() = %+v, want nil", got)
	}
}

func TestStore_AppendRejectsOverwrite(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	addr := address.New(1)
	if err := s.Append(addr, &codec.LogEntry{DataType: codec.DataTypeData, Data: []byte("a")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err = s.Append(addr, &codec.LogEntry{DataType: codec.DataTypeData, Data: []byte("b")})
	if !IsOverwrite(err) {
		t.Fatalf("second Append() err = %v, want Overwrite", err)
	}
}

func TestStore_SegmentRoutingAtBoundary(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.Append(address.New(9999), &codec.LogEntry{DataType: codec.DataTypeData, Data: []byte("last-of-0")}); err != nil {
		t.Fatalf("Append(9999): %v", err)
	}
	if err := s.Append(address.New(10000), &codec.LogEntry{DataType: codec.DataTypeData, Data: []byte("first-of-1")}); err != nil {
		t.Fatalf("Append(10000): %v", err)
	}

	if _, err := os.Stat(filepath.Join(s.cfg.LogDir, "0.log")); err != nil {
		t.Errorf("segment 0 file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.cfg.LogDir, "1.log")); err != nil {
		t.Errorf("segment 1 file missing: %v", err)
	}
}

func TestStore_ReopenSurvivesRestart(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	addr := address.New(7)
	if err := s1.Append(addr, &codec.LogEntry{DataType: codec.DataTypeData, Data: []byte("durable")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Read(addr)
	if err != nil {
		t.Fatalf("Read after reopen: %v", err)
	}
	if got == nil || string(got.Data) != "durable" {
		t.Fatalf("Read after reopen = %+v, want Data=durable", got)
	}
}

func TestStore_TrimThenReadReportsTrimmed(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	addr := address.New(3)
	if err := s.Append(addr, &codec.LogEntry{DataType: codec.DataTypeData, Data: []byte("x")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Trim(addr); err != nil {
		t.Fatalf("Trim: %v", err)
	}

	_, err = s.Read(addr)
	if !IsTrimmed(err) {
		t.Fatalf("Read() after Trim err = %v, want Trimmed", err)
	}
}

func TestStore_CompactPromotesPendingTrimsAndShrinksFullSegment(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, WithTrimThreshold(1))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for i := uint64(0); i < address.RecordsPerLogFile; i++ {
		if err := s.Append(address.New(i), &codec.LogEntry{DataType: codec.DataTypeData, Data: make([]byte, 64)}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	for i := uint64(0); i < 100; i++ {
		if err := s.Trim(address.New(i)); err != nil {
			t.Fatalf("Trim(%d): %v", i, err)
		}
	}

	before, err := os.Stat(filepath.Join(dir, "0.log"))
	if err != nil {
		t.Fatalf("stat before compact: %v", err)
	}

	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	after, err := os.Stat(filepath.Join(dir, "0.log"))
	if err != nil {
		t.Fatalf("stat after compact: %v", err)
	}
	if after.Size() >= before.Size() {
		t.Errorf("size after compact = %d, want < %d", after.Size(), before.Size())
	}

	for i := uint64(0); i < 100; i++ {
		got, err := s.Read(address.New(i))
		if !IsTrimmed(err) || got != nil {
			t.Errorf("Read(%d) after compaction = (%+v, %v), want Trimmed error", i, got, err)
		}
	}
	got, err := s.Read(address.New(100))
	if err != nil || got == nil {
		t.Errorf("Read(100) after compaction = (%+v, %v), want surviving entry", got, err)
	}
}

func TestStore_DetectsCorruptionOnReopen(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s1.Append(address.New(0), &codec.LogEntry{DataType: codec.DataTypeData, Data: []byte("payload")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "0.log")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open for corruption: %v", err)
	}
	if _, err := f.WriteAt([]byte{0xFF}, info.Size()-1); err != nil {
		t.Fatalf("corrupt byte: %v", err)
	}
	f.Close()

	_, err = Open(dir)
	if err == nil {
		t.Fatal("Open() over corrupted segment returned nil error")
	}
}
