package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
)

const (
	// Delimiter marks the start of a framed LogEntry record. The header
	// record has no delimiter: it is always the first bytes of a file.
	Delimiter uint16 = 0x4C45

	// MetadataSize is the fixed, schema-encoded size of the metadata
	// envelope {checksum int32, length int32} that precedes every
	// framed header or entry payload.
	MetadataSize = 8

	// Version is the only LogHeader version this codec understands.
	Version uint32 = 1
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ErrEndOfSegment is returned by DecodeEntry when the delimiter does not
// match. Per the framing contract this is the normal way a reader learns
// it has reached the live tail of a segment (zeros left by a crashed or
// in-progress append) — it is never treated as corruption.
var ErrEndOfSegment = errors.New("codec: end of segment")

// ErrDataCorruption signals a checksum mismatch or a malformed record
// encountered after a valid delimiter was already read.
var ErrDataCorruption = errors.New("codec: data corruption")

// Checksum computes the CRC-32C of b, returned as the signed 32-bit value
// stored on disk.
func Checksum(b []byte) int32 {
	return int32(crc32.Checksum(b, crcTable))
}

// ChecksumAddress computes the CRC-32C of the 8 big-endian bytes of addr,
// the checksum scheme TrimEntry uses.
func ChecksumAddress(addr int64) int32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(addr))
	return Checksum(buf[:])
}

type envelope struct {
	Checksum int32
	Length   int32
}

func writeEnvelope(w io.Writer, e envelope) error {
	var buf [MetadataSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.Checksum))
	binary.BigEndian.PutUint32(buf[4:8], uint32(e.Length))
	_, err := w.Write(buf[:])
	return err
}

func readEnvelope(r io.Reader) (envelope, error) {
	var buf [MetadataSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return envelope{}, err
	}
	return envelope{
		Checksum: int32(binary.BigEndian.Uint32(buf[0:4])),
		Length:   int32(binary.BigEndian.Uint32(buf[4:8])),
	}, nil
}

// EncodeHeader serialises the segment header. Headers have no delimiter:
// they occupy the first bytes of a fresh data file.
func EncodeHeader(w io.Writer, h Header) error {
	payload := marshalHeader(h)
	env := envelope{Checksum: Checksum(payload), Length: int32(len(payload))}
	if err := writeEnvelope(w, env); err != nil {
		return pkgerrors.Wrap(err, "codec: write header envelope")
	}
	if _, err := w.Write(payload); err != nil {
		return pkgerrors.Wrap(err, "codec: write header payload")
	}
	return nil
}

// DecodeHeader reads a segment header. verify controls whether checksum
// mismatches are treated as corruption; the segment open path and the
// compactor both pass true.
func DecodeHeader(r io.Reader, verify bool) (Header, error) {
	env, err := readEnvelope(r)
	if err != nil {
		return Header{}, pkgerrors.Wrap(err, "codec: read header envelope")
	}
	payload := make([]byte, env.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Header{}, pkgerrors.Wrap(err, "codec: read header payload")
	}
	if verify && Checksum(payload) != env.Checksum {
		return Header{}, ErrDataCorruption
	}
	return unmarshalHeader(payload)
}

func marshalHeader(h Header) []byte {
	buf := make([]byte, 5)
	binary.BigEndian.PutUint32(buf[0:4], h.Version)
	if h.VerifyChecksum {
		buf[4] = 1
	}
	return buf
}

func unmarshalHeader(b []byte) (Header, error) {
	if len(b) < 5 {
		return Header{}, ErrDataCorruption
	}
	return Header{
		Version:        binary.BigEndian.Uint32(b[0:4]),
		VerifyChecksum: b[4] != 0,
	}, nil
}

// EncodeEntry writes the delimiter, metadata envelope and serialised
// payload for e.
func EncodeEntry(w io.Writer, e *LogEntry) error {
	payload, err := marshalEntry(e)
	if err != nil {
		return pkgerrors.Wrap(err, "codec: marshal entry")
	}
	var delim [2]byte
	binary.BigEndian.PutUint16(delim[:], Delimiter)
	if _, err := w.Write(delim[:]); err != nil {
		return pkgerrors.Wrap(err, "codec: write delimiter")
	}
	env := envelope{Checksum: Checksum(payload), Length: int32(len(payload))}
	if err := writeEnvelope(w, env); err != nil {
		return pkgerrors.Wrap(err, "codec: write entry envelope")
	}
	if _, err := w.Write(payload); err != nil {
		return pkgerrors.Wrap(err, "codec: write entry payload")
	}
	return nil
}

// EntryMeta is the envelope information recovered alongside an entry,
// the on-disk counterpart of a SegmentHandle's AddressMetaData.
type EntryMeta struct {
	Checksum int32
	Length   int32
}

// EncodeEntryMeta writes e to w exactly as EncodeEntry does, and returns
// the envelope that was written so a caller (SegmentHandle.Append) can
// build an AddressMetaData without re-marshalling the entry.
func EncodeEntryMeta(w io.Writer, e *LogEntry) (EntryMeta, error) {
	payload, err := marshalEntry(e)
	if err != nil {
		return EntryMeta{}, pkgerrors.Wrap(err, "codec: marshal entry")
	}
	var delim [2]byte
	binary.BigEndian.PutUint16(delim[:], Delimiter)
	if _, err := w.Write(delim[:]); err != nil {
		return EntryMeta{}, pkgerrors.Wrap(err, "codec: write delimiter")
	}
	env := envelope{Checksum: Checksum(payload), Length: int32(len(payload))}
	if err := writeEnvelope(w, env); err != nil {
		return EntryMeta{}, pkgerrors.Wrap(err, "codec: write entry envelope")
	}
	if _, err := w.Write(payload); err != nil {
		return EntryMeta{}, pkgerrors.Wrap(err, "codec: write entry payload")
	}
	return EntryMeta{Checksum: env.Checksum, Length: env.Length}, nil
}

// DecodeEntryPayload parses a LogEntry from its raw payload bytes, the
// form a positioned ReadAt recovers once the index already supplies the
// checksum and length. It does not touch the delimiter or envelope.
func DecodeEntryPayload(b []byte) (*LogEntry, error) {
	return unmarshalEntry(b)
}

// DecodeEntry reads one framed entry from r. verify selects whether a
// checksum mismatch is reported as ErrDataCorruption.
//
// A delimiter mismatch returns ErrEndOfSegment, never corruption: zeros
// left behind by a torn append look exactly like this and must terminate
// recovery cleanly rather than fail it.
func DecodeEntry(r io.Reader, verify bool) (*LogEntry, error) {
	entry, _, err := DecodeEntryMeta(r, verify)
	return entry, err
}

// DecodeEntryMeta is DecodeEntry plus the envelope metadata, used by
// recovery to rebuild the in-memory address index without re-deriving
// the checksum from a re-marshalled entry.
func DecodeEntryMeta(r io.Reader, verify bool) (*LogEntry, EntryMeta, error) {
	var delim [2]byte
	if _, err := io.ReadFull(r, delim[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, EntryMeta{}, ErrEndOfSegment
		}
		return nil, EntryMeta{}, pkgerrors.Wrap(err, "codec: read delimiter")
	}
	if binary.BigEndian.Uint16(delim[:]) != Delimiter {
		return nil, EntryMeta{}, ErrEndOfSegment
	}

	env, err := readEnvelope(r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, EntryMeta{}, ErrEndOfSegment
		}
		return nil, EntryMeta{}, ErrDataCorruption
	}
	if env.Length < 0 {
		return nil, EntryMeta{}, ErrDataCorruption
	}
	payload := make([]byte, env.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, EntryMeta{}, ErrDataCorruption
	}
	if verify && Checksum(payload) != env.Checksum {
		return nil, EntryMeta{}, ErrDataCorruption
	}
	entry, err := unmarshalEntry(payload)
	if err != nil {
		return nil, EntryMeta{}, ErrDataCorruption
	}
	meta := EntryMeta{Checksum: env.Checksum, Length: env.Length}
	return entry, meta, nil
}

// EncodedEntrySize returns the number of bytes EncodeEntry would write
// for e.
func EncodedEntrySize(e *LogEntry) (int, error) {
	payload, err := marshalEntry(e)
	if err != nil {
		return 0, err
	}
	return 2 + MetadataSize + len(payload), nil
}

func marshalEntry(e *LogEntry) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(e.DataType))

	var scratch8 [8]byte
	binary.BigEndian.PutUint64(scratch8[:], uint64(e.GlobalAddress))
	buf.Write(scratch8[:])
	binary.BigEndian.PutUint64(scratch8[:], uint64(e.Rank))
	buf.Write(scratch8[:])

	if e.Commit {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	var scratch4 [4]byte
	binary.BigEndian.PutUint32(scratch4[:], uint32(len(e.Data)))
	buf.Write(scratch4[:])
	buf.Write(e.Data)

	binary.BigEndian.PutUint16(scratch4[:2], uint16(len(e.Streams)))
	buf.Write(scratch4[:2])
	for _, s := range e.Streams {
		sb, err := s.MarshalBinary()
		if err != nil {
			return nil, err
		}
		buf.Write(sb)
	}

	if err := marshalAddrMap(&buf, e.LogicalAddresses); err != nil {
		return nil, err
	}
	if err := marshalAddrMap(&buf, e.Backpointers); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func marshalAddrMap(buf *bytes.Buffer, m map[uuid.UUID]int64) error {
	var scratch [8]byte
	binary.BigEndian.PutUint32(scratch[:4], uint32(len(m)))
	buf.Write(scratch[:4])
	for k, v := range m {
		kb, err := k.MarshalBinary()
		if err != nil {
			return err
		}
		buf.Write(kb)
		binary.BigEndian.PutUint64(scratch[:], uint64(v))
		buf.Write(scratch[:])
	}
	return nil
}

func unmarshalEntry(b []byte) (*LogEntry, error) {
	r := bytes.NewReader(b)

	dt, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var scratch8 [8]byte
	if _, err := io.ReadFull(r, scratch8[:]); err != nil {
		return nil, err
	}
	globalAddress := int64(binary.BigEndian.Uint64(scratch8[:]))
	if _, err := io.ReadFull(r, scratch8[:]); err != nil {
		return nil, err
	}
	rank := int64(binary.BigEndian.Uint64(scratch8[:]))

	commitByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var scratch4 [4]byte
	if _, err := io.ReadFull(r, scratch4[:]); err != nil {
		return nil, err
	}
	dataLen := binary.BigEndian.Uint32(scratch4[:])
	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	var scratch2 [2]byte
	if _, err := io.ReadFull(r, scratch2[:]); err != nil {
		return nil, err
	}
	streamCount := binary.BigEndian.Uint16(scratch2[:])
	streams := make([]uuid.UUID, 0, streamCount)
	for i := uint16(0); i < streamCount; i++ {
		var idBytes [16]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return nil, err
		}
		id, err := uuid.FromBytes(idBytes[:])
		if err != nil {
			return nil, err
		}
		streams = append(streams, id)
	}

	logicalAddresses, err := unmarshalAddrMap(r)
	if err != nil {
		return nil, err
	}
	backpointers, err := unmarshalAddrMap(r)
	if err != nil {
		return nil, err
	}

	return &LogEntry{
		GlobalAddress:    globalAddress,
		DataType:         DataType(dt),
		Data:             data,
		Rank:             rank,
		Commit:           commitByte != 0,
		Streams:          streams,
		LogicalAddresses: logicalAddresses,
		Backpointers:     backpointers,
	}, nil
}

func unmarshalAddrMap(r io.Reader) (map[uuid.UUID]int64, error) {
	var scratch4 [4]byte
	if _, err := io.ReadFull(r, scratch4[:]); err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(scratch4[:])
	m := make(map[uuid.UUID]int64, count)
	for i := uint32(0); i < count; i++ {
		var idBytes [16]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return nil, err
		}
		id, err := uuid.FromBytes(idBytes[:])
		if err != nil {
			return nil, err
		}
		var v [8]byte
		if _, err := io.ReadFull(r, v[:]); err != nil {
			return nil, err
		}
		m[id] = int64(binary.BigEndian.Uint64(v[:]))
	}
	return m, nil
}

// EncodeTrimEntry writes t in length-delimited form:
// [int32 length][int32 checksum][int64 address].
func EncodeTrimEntry(w io.Writer, t TrimEntry) error {
	var buf [4 + 4 + 8]byte
	binary.BigEndian.PutUint32(buf[0:4], 12)
	binary.BigEndian.PutUint32(buf[4:8], uint32(t.Checksum))
	binary.BigEndian.PutUint64(buf[8:16], uint64(t.Address))
	_, err := w.Write(buf[:])
	return err
}

// DecodeTrimEntry reads one length-delimited TrimEntry from r. A clean
// io.EOF at the start of a record means the stream is exhausted.
func DecodeTrimEntry(r io.Reader) (TrimEntry, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return TrimEntry{}, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return TrimEntry{}, ErrDataCorruption
	}
	if length < 12 {
		return TrimEntry{}, ErrDataCorruption
	}
	return TrimEntry{
		Checksum: int32(binary.BigEndian.Uint32(body[0:4])),
		Address:  int64(binary.BigEndian.Uint64(body[4:12])),
	}, nil
}
