package protocol

import (
	"encoding/binary"
	"io"

	"github.com/google/uuid"

	"sharedlog/internal/address"
)

// EncodeAddress writes addr as [hasStream byte][stream 16 bytes if
// present][value 8 bytes], the wire counterpart of address.Address.
func EncodeAddress(w io.Writer, addr address.Address) error {
	if addr.Stream == nil {
		if _, err := w.Write([]byte{0}); err != nil {
			return err
		}
	} else {
		if _, err := w.Write([]byte{1}); err != nil {
			return err
		}
		streamBytes, err := addr.Stream.MarshalBinary()
		if err != nil {
			return err
		}
		if _, err := w.Write(streamBytes); err != nil {
			return err
		}
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], addr.Value)
	_, err := w.Write(buf[:])
	return err
}

// DecodeAddress reads an address.Address written by EncodeAddress.
func DecodeAddress(r io.Reader) (address.Address, error) {
	var hasStream [1]byte
	if _, err := io.ReadFull(r, hasStream[:]); err != nil {
		return address.Address{}, err
	}

	var stream *uuid.UUID
	if hasStream[0] != 0 {
		var idBytes [16]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return address.Address{}, err
		}
		id, err := uuid.FromBytes(idBytes[:])
		if err != nil {
			return address.Address{}, err
		}
		stream = &id
	}

	var valueBuf [8]byte
	if _, err := io.ReadFull(r, valueBuf[:]); err != nil {
		return address.Address{}, err
	}
	return address.Address{Value: binary.BigEndian.Uint64(valueBuf[:]), Stream: stream}, nil
}
