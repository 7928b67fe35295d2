package broker

import (
	"bytes"
	"fmt"

	"sharedlog/internal/codec"
	"sharedlog/internal/protocol"
)

func (b *Broker) handleRequest(req *protocol.Request) ([]byte, error) {
	switch req.Header.ApiKey {
	case protocol.ApiKeyAppend:
		return b.handleAppend(req)
	case protocol.ApiKeyRead:
		return b.handleRead(req)
	case protocol.ApiKeyTrim:
		return b.handleTrim(req)
	case protocol.ApiKeySync:
		return b.handleSync(req)
	case protocol.ApiKeyCompact:
		return b.handleCompact(req)
	default:
		return nil, fmt.Errorf("broker: unknown api key %d", req.Header.ApiKey)
	}
}

// handleAppend decodes [address][framed LogEntry] from the request body
// and appends it to the store. Overwrite and similar store-level errors
// are reported in the response, not by closing the connection.
func (b *Broker) handleAppend(req *protocol.Request) ([]byte, error) {
	r := bytes.NewReader(req.Body)
	addr, err := protocol.DecodeAddress(r)
	if err != nil {
		return nil, err
	}
	entry, err := codec.DecodeEntry(r, true)
	if err != nil {
		return nil, err
	}

	if err := b.Store.Append(addr, entry); err != nil {
		return protocol.ErrorResponse(err), nil
	}
	return protocol.OKResponse(), nil
}

func (b *Broker) handleRead(req *protocol.Request) ([]byte, error) {
	r := bytes.NewReader(req.Body)
	addr, err := protocol.DecodeAddress(r)
	if err != nil {
		return nil, err
	}

	entry, err := b.Store.Read(addr)
	if err != nil {
		return protocol.ErrorResponse(err), nil
	}
	if entry == nil {
		return protocol.NotFoundResponse(), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(protocol.StatusOK))
	if err := codec.EncodeEntry(&buf, entry); err != nil {
		return protocol.ErrorResponse(err), nil
	}
	return buf.Bytes(), nil
}

func (b *Broker) handleTrim(req *protocol.Request) ([]byte, error) {
	r := bytes.NewReader(req.Body)
	addr, err := protocol.DecodeAddress(r)
	if err != nil {
		return nil, err
	}

	if err := b.Store.Trim(addr); err != nil {
		return protocol.ErrorResponse(err), nil
	}
	return protocol.OKResponse(), nil
}

func (b *Broker) handleSync(req *protocol.Request) ([]byte, error) {
	if err := b.Store.Sync(); err != nil {
		return protocol.ErrorResponse(err), nil
	}
	return protocol.OKResponse(), nil
}

func (b *Broker) handleCompact(req *protocol.Request) ([]byte, error) {
	if err := b.Store.Compact(); err != nil {
		return protocol.ErrorResponse(err), nil
	}
	return protocol.OKResponse(), nil
}
