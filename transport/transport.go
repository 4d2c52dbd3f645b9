// Package transport bundles an optional default WebSocket opener for the
// MT4 Web Terminal protocol (spec.md §6: "an implementation MAY bundle a
// default WebSocket opener as a convenience"). The client facade itself
// only depends on the Conn interface; callers with their own transport
// (a proxy, a test double, a different WS library) never need this package.
package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/coachpo/mt4gw/errs"
)

// Conn is the bidirectional binary-message channel the client facade reads
// encoded frames from and writes encoded frames to. Read and Write block
// until a message is available or the context is done.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Options configures the default dialer.
type Options struct {
	// DialTimeout bounds a single dial attempt.
	DialTimeout time.Duration
	// MaxElapsedTime bounds the total retry budget for the initial dial.
	// Zero means backoff.NewExponentialBackOff's own default (unbounded
	// until context cancellation carries it away).
	MaxElapsedTime time.Duration
}

func (o Options) dialTimeout() time.Duration {
	if o.DialTimeout > 0 {
		return o.DialTimeout
	}
	return 10 * time.Second
}

// Dial opens a WebSocket connection to wsURL, retrying the initial dial
// with exponential backoff the way websocket_manager.go's connect loop
// does for the streaming adapters. This only covers the first dial; the
// core's own reconnection policy (if any) is the caller's responsibility
// (spec.md §1 Non-goals).
func Dial(ctx context.Context, wsURL string, opts Options) (Conn, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	deadline := time.Time{}
	if opts.MaxElapsedTime > 0 {
		deadline = time.Now().Add(opts.MaxElapsedTime)
	}

	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return nil, errs.Transport(errs.WithCause(ctx.Err()), errs.WithMessage("dial cancelled"))
		default:
		}

		dialCtx, cancel := context.WithTimeout(ctx, opts.dialTimeout())
		conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
		cancel()
		if err == nil {
			return &wsConn{conn: conn}, nil
		}
		lastErr = fmt.Errorf("dial %s: %w", wsURL, err)

		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, errs.Transport(errs.WithCause(lastErr), errs.WithMessage("dial retry budget exhausted"))
		}

		sleep := backoffCfg.NextBackOff()
		select {
		case <-ctx.Done():
			return nil, errs.Transport(errs.WithCause(ctx.Err()), errs.WithMessage("dial cancelled"))
		case <-time.After(sleep):
		}
	}
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	typ, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, errs.Transport(errs.WithCause(err), errs.WithMessage("read"))
	}
	if typ != websocket.MessageBinary {
		return nil, errs.Transport(errs.WithMessage("unexpected non-binary websocket message"))
	}
	return data, nil
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	if err := c.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return errs.Transport(errs.WithCause(err), errs.WithMessage("write"))
	}
	return nil
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "closed by client")
}
