// Package faketransport is a scripted transport.Conn test double: tests
// push inbound frames and assert on captured outbound frames instead of
// driving a live exchange connection.
package faketransport

import (
	"context"
	"errors"
)

// Conn is a channel-backed transport.Conn. Zero value is not usable; use
// New.
type Conn struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}
}

// New returns a Conn with room for backlog buffered inbound frames and
// outbound frames before Read/Write block.
func New(backlog int) *Conn {
	if backlog <= 0 {
		backlog = 16
	}
	return &Conn{
		inbound:  make(chan []byte, backlog),
		outbound: make(chan []byte, backlog),
		closed:   make(chan struct{}),
	}
}

// Push enqueues a frame the reader task will receive on its next Read.
func (c *Conn) Push(frame []byte) {
	select {
	case c.inbound <- frame:
	case <-c.closed:
	}
}

// Read implements transport.Conn.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-c.inbound:
		if !ok {
			return nil, errors.New("faketransport: closed")
		}
		return frame, nil
	case <-c.closed:
		return nil, errors.New("faketransport: closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements transport.Conn. The written frame is captured for
// assertions via Sent/Next.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	frame := append([]byte(nil), data...)
	select {
	case c.outbound <- frame:
		return nil
	case <-c.closed:
		return errors.New("faketransport: closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements transport.Conn.
func (c *Conn) Close() error {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
	return nil
}

// Next blocks for the next frame the client wrote, for test assertions.
func (c *Conn) Next(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.outbound:
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
