package protocol

import (
	"encoding/binary"
	"io"
)

// Response framing: [Size(4)] + [CorrelationID(4)] + [Body...].
const (
	responseHeaderSize = correlationIDSize
	framingSize        = 4
)

// Status is the first byte of every response body, distinguishing a
// clean result from a miss or a store-level error.
type Status byte

const (
	StatusOK Status = iota
	StatusNotFound
	StatusError
)

// OKResponse is the body for an operation that succeeded with no
// payload (Append, Trim, Sync, Compact).
func OKResponse() []byte {
	return []byte{byte(StatusOK)}
}

// NotFoundResponse is Read's body when the address is unknown.
func NotFoundResponse() []byte {
	return []byte{byte(StatusNotFound)}
}

// ErrorResponse encodes err as a StatusError body.
func ErrorResponse(err error) []byte {
	msg := err.Error()
	buf := make([]byte, 1+len(msg))
	buf[0] = byte(StatusError)
	copy(buf[1:], msg)
	return buf
}

// SendResponse writes a length-prefixed response carrying correlationID
// and body to w.
func SendResponse(w io.Writer, correlationID int32, body []byte) error {
	payloadSize := responseHeaderSize + len(body)

	var headerBuf [framingSize + responseHeaderSize]byte
	offset := 0
	binary.BigEndian.PutUint32(headerBuf[offset:offset+framingSize], uint32(payloadSize))
	offset += framingSize
	binary.BigEndian.PutUint32(headerBuf[offset:offset+correlationIDSize], uint32(correlationID))

	if _, err := w.Write(headerBuf[:]); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}
