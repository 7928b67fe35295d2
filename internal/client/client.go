// Package client is a minimal TCP client for the demo broker: one
// connection, five blocking requests (Append/Read/Trim/Sync/Compact),
// no pipelining or connection pooling.
package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"sharedlog/internal/address"
	"sharedlog/internal/codec"
	"sharedlog/internal/protocol"
)

// Config identifies the broker to connect to.
type Config struct {
	BrokerAddr string
	ClientID   string
}

// Client holds one connection to a broker.
type Client struct {
	Config Config
	conn   net.Conn
}

// NewClient dials the broker at cfg.BrokerAddr.
func NewClient(cfg Config) (*Client, error) {
	conn, err := net.DialTimeout("tcp", cfg.BrokerAddr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{Config: cfg, conn: conn}, nil
}

func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Append writes entry at addr. Returns a store-level error (e.g.
// overwrite) unwrapped from the response body.
func (c *Client) Append(addr address.Address, entry *codec.LogEntry) error {
	var body bytes.Buffer
	if err := protocol.EncodeAddress(&body, addr); err != nil {
		return err
	}
	if err := codec.EncodeEntry(&body, entry); err != nil {
		return err
	}

	resp, err := c.roundTrip(protocol.ApiKeyAppend, body.Bytes())
	if err != nil {
		return err
	}
	return statusOnly(resp)
}

// Read fetches the entry stored at addr, returning (nil, nil) if the
// broker reports it unknown.
func (c *Client) Read(addr address.Address) (*codec.LogEntry, error) {
	var body bytes.Buffer
	if err := protocol.EncodeAddress(&body, addr); err != nil {
		return nil, err
	}

	resp, err := c.roundTrip(protocol.ApiKeyRead, body.Bytes())
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("client: empty response")
	}

	switch protocol.Status(resp[0]) {
	case protocol.StatusNotFound:
		return nil, nil
	case protocol.StatusError:
		return nil, errors.New(string(resp[1:]))
	case protocol.StatusOK:
		return codec.DecodeEntry(bytes.NewReader(resp[1:]), true)
	default:
		return nil, fmt.Errorf("client: unknown response status %d", resp[0])
	}
}

// Trim marks addr pending trim.
func (c *Client) Trim(addr address.Address) error {
	var body bytes.Buffer
	if err := protocol.EncodeAddress(&body, addr); err != nil {
		return err
	}
	resp, err := c.roundTrip(protocol.ApiKeyTrim, body.Bytes())
	if err != nil {
		return err
	}
	return statusOnly(resp)
}

// Sync requests the broker fsync every dirty segment file of its store.
func (c *Client) Sync() error {
	resp, err := c.roundTrip(protocol.ApiKeySync, nil)
	if err != nil {
		return err
	}
	return statusOnly(resp)
}

// Compact requests one compaction pass over the broker's store.
func (c *Client) Compact() error {
	resp, err := c.roundTrip(protocol.ApiKeyCompact, nil)
	if err != nil {
		return err
	}
	return statusOnly(resp)
}

func statusOnly(resp []byte) error {
	if len(resp) == 0 {
		return fmt.Errorf("client: empty response")
	}
	switch protocol.Status(resp[0]) {
	case protocol.StatusOK, protocol.StatusNotFound:
		return nil
	case protocol.StatusError:
		return errors.New(string(resp[1:]))
	default:
		return fmt.Errorf("client: unknown response status %d", resp[0])
	}
}

func (c *Client) roundTrip(apiKey protocol.ApiKey, body []byte) ([]byte, error) {
	if err := c.sendRequest(apiKey, body); err != nil {
		return nil, err
	}
	return c.readResponse()
}

// sendRequest encodes and writes the request packet.
func (c *Client) sendRequest(apiKey protocol.ApiKey, body []byte) error {
	clientIDLen := len(c.Config.ClientID)
	headerSize := 2 + 2 + 4 + 2 + clientIDLen
	totalSize := headerSize + len(body)

	buf := make([]byte, 4+totalSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(totalSize))

	offset := 4
	binary.BigEndian.PutUint16(buf[offset:], uint16(apiKey))
	offset += 2
	binary.BigEndian.PutUint16(buf[offset:], 0)
	offset += 2
	binary.BigEndian.PutUint32(buf[offset:], 1)
	offset += 4
	binary.BigEndian.PutUint16(buf[offset:], uint16(clientIDLen))
	offset += 2
	copy(buf[offset:], c.Config.ClientID)
	offset += clientIDLen
	copy(buf[offset:], body)

	_, err := c.conn.Write(buf)
	return err
}

// readResponse reads the framed response packet and strips its
// correlation-id header, returning the raw body.
func (c *Client) readResponse() ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])

	data := make([]byte, size)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, err
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("client: response too short")
	}
	return data[4:], nil
}
