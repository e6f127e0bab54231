package control

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/joshuapare/bigbuf/device"
)

// Client issues control requests over one connection. It is safe for
// concurrent use; requests are serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	enc  *cbor.Encoder
	dec  *cbor.Decoder
}

// Dial connects to a control server.
func Dial(ctx context.Context, network, address string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("control: dial %s: %w", address, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, enc: cbor.NewEncoder(conn), dec: cbor.NewDecoder(conn)}
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// Alloc asks for an allocation of size bytes. With a reject policy the
// live allocation is returned alongside mem.ErrAlreadyAllocated.
func (c *Client) Alloc(ctx context.Context, size uint64) (device.Info, error) {
	resp, err := c.do(ctx, &Request{Op: OpAlloc, Size: size})
	if err != nil {
		return device.Info{}, err
	}
	return resp.Info(), resp.Err()
}

// Addr describes the live allocation.
func (c *Client) Addr(ctx context.Context) (device.Info, error) {
	resp, err := c.do(ctx, &Request{Op: OpAddr})
	if err != nil {
		return device.Info{}, err
	}
	return resp.Info(), resp.Err()
}

// Release frees the live allocation.
func (c *Client) Release(ctx context.Context) error {
	resp, err := c.do(ctx, &Request{Op: OpRelease})
	if err != nil {
		return err
	}
	return resp.Err()
}

// Read returns n bytes at off.
func (c *Client) Read(ctx context.Context, off, n uint64) ([]byte, error) {
	resp, err := c.do(ctx, &Request{Op: OpRead, Off: off, Len: n})
	if err != nil {
		return nil, err
	}
	return resp.Data, resp.Err()
}

// Write stores data at off.
func (c *Client) Write(ctx context.Context, off uint64, data []byte) error {
	resp, err := c.do(ctx, &Request{Op: OpWrite, Off: off, Data: data})
	if err != nil {
		return err
	}
	return resp.Err()
}

func (c *Client) do(ctx context.Context, req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Clear any deadline left by an earlier cancelled request.
	if err := c.conn.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("control: %s: %w", req.Op, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	if err := c.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("control: %s: send: %w", req.Op, err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("control: %s: receive: %w", req.Op, err)
	}
	return &resp, nil
}
