package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestEncodeDecodeEntry_RoundTrip(t *testing.T) {
	stream := uuid.New()
	entry := &LogEntry{
		GlobalAddress: 42,
		DataType:      DataTypeData,
		Data:          []byte("hello world"),
		Rank:          7,
		Commit:        true,
		Streams:       []uuid.UUID{stream},
		LogicalAddresses: map[uuid.UUID]int64{
			stream: 42,
		},
		Backpointers: map[uuid.UUID]int64{
			stream: 41,
		},
	}

	var buf bytes.Buffer
	if err := EncodeEntry(&buf, entry); err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}

	got, err := DecodeEntry(&buf, true)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}

	if got.GlobalAddress != entry.GlobalAddress {
		t.Errorf("GlobalAddress = %d, want %d", got.GlobalAddress, entry.GlobalAddress)
	}
	if got.DataType != entry.DataType {
		t.Errorf("DataType = %v, want %v", got.DataType, entry.DataType)
	}
	if !bytes.Equal(got.Data, entry.Data) {
		t.Errorf("Data = %q, want %q", got.Data, entry.Data)
	}
	if got.Rank != entry.Rank {
		t.Errorf("Rank = %d, want %d", got.Rank, entry.Rank)
	}
	if got.Commit != entry.Commit {
		t.Errorf("Commit = %v, want %v", got.Commit, entry.Commit)
	}
	if len(got.Streams) != 1 || got.Streams[0] != stream {
		t.Errorf("Streams = %v, want [%v]", got.Streams, stream)
	}
	if got.LogicalAddresses[stream] != 42 {
		t.Errorf("LogicalAddresses[stream] = %d, want 42", got.LogicalAddresses[stream])
	}
	if got.Backpointers[stream] != 41 {
		t.Errorf("Backpointers[stream] = %d, want 41", got.Backpointers[stream])
	}
}

func TestDecodeEntry_CorruptedChecksum(t *testing.T) {
	entry := &LogEntry{GlobalAddress: 1, DataType: DataTypeData, Data: []byte("payload")}

	var buf bytes.Buffer
	if err := EncodeEntry(&buf, entry); err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}

	raw := buf.Bytes()
	flipIndex := len(raw) - 1
	raw[flipIndex] ^= 0xFF

	_, err := DecodeEntry(bytes.NewReader(raw), true)
	if !errors.Is(err, ErrDataCorruption) {
		t.Fatalf("DecodeEntry() err = %v, want ErrDataCorruption", err)
	}
}

func TestDecodeEntry_NoVerifyIgnoresChecksum(t *testing.T) {
	entry := &LogEntry{GlobalAddress: 1, DataType: DataTypeData, Data: []byte("payload")}

	var buf bytes.Buffer
	if err := EncodeEntry(&buf, entry); err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}

	raw := buf.Bytes()
	raw[bytes.Index(raw, entry.Data)] ^= 0xFF

	if _, err := DecodeEntry(bytes.NewReader(raw), false); err != nil {
		t.Fatalf("DecodeEntry() with verify=false err = %v, want nil", err)
	}
}

func TestDecodeEntry_ZeroTailIsEndOfSegment(t *testing.T) {
	zeros := make([]byte, 64)
	_, err := DecodeEntry(bytes.NewReader(zeros), true)
	if !errors.Is(err, ErrEndOfSegment) {
		t.Fatalf("DecodeEntry() on zero tail err = %v, want ErrEndOfSegment", err)
	}
}

func TestDecodeEntry_TruncatedAtEOF(t *testing.T) {
	entry := &LogEntry{GlobalAddress: 1, DataType: DataTypeData, Data: []byte("payload")}

	var buf bytes.Buffer
	if err := EncodeEntry(&buf, entry); err != nil {
		t.Fatalf("EncodeEntry: %v", err)
	}

	truncated := buf.Bytes()[:3]
	_, err := DecodeEntry(bytes.NewReader(truncated), true)
	if !errors.Is(err, ErrEndOfSegment) {
		t.Fatalf("DecodeEntry() on truncated tail err = %v, want ErrEndOfSegment", err)
	}
}

func TestEncodeDecodeHeader_RoundTrip(t *testing.T) {
	h := Header{Version: Version, VerifyChecksum: true}

	var buf bytes.Buffer
	if err := EncodeHeader(&buf, h); err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}

	got, err := DecodeHeader(&buf, true)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Errorf("DecodeHeader() = %+v, want %+v", got, h)
	}
}

func TestEncodeDecodeTrimEntry_RoundTrip(t *testing.T) {
	tests := []TrimEntry{
		{Checksum: ChecksumAddress(0), Address: 0},
		{Checksum: ChecksumAddress(9999), Address: 9999},
		{Checksum: ChecksumAddress(-1), Address: -1},
	}

	for _, want := range tests {
		var buf bytes.Buffer
		if err := EncodeTrimEntry(&buf, want); err != nil {
			t.Fatalf("EncodeTrimEntry(%+v): %v", want, err)
		}
		got, err := DecodeTrimEntry(&buf)
		if err != nil {
			t.Fatalf("DecodeTrimEntry(%+v): %v", want, err)
		}
		if got != want {
			t.Errorf("DecodeTrimEntry() = %+v, want %+v", got, want)
		}
	}
}

func TestDecodeTrimEntry_EOF(t *testing.T) {
	if _, err := DecodeTrimEntry(bytes.NewReader(nil)); err == nil {
		t.Fatal("DecodeTrimEntry() on empty reader returned nil error, want EOF")
	}
}
