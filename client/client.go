// Package client is the MT4 Web Terminal client facade (spec.md §4.6): a
// request API (buy/sell/close/account-info/history/ping) and a typed event
// stream, backed by a single reader task and a single writer task owning
// the transport's two halves (spec.md §5).
package client

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/coachpo/mt4gw/bootstrap"
	"github.com/coachpo/mt4gw/book"
	"github.com/coachpo/mt4gw/config"
	"github.com/coachpo/mt4gw/errs"
	"github.com/coachpo/mt4gw/internal/telemetry"
	"github.com/coachpo/mt4gw/records"
	"github.com/coachpo/mt4gw/session"
	"github.com/coachpo/mt4gw/transport"
)

// Dialer opens the transport the client reads from and writes to. The
// default client wires this to transport.Dial; tests wire it to a
// faketransport.Conn.
type Dialer func(ctx context.Context, wsURL string) (transport.Conn, error)

// Bootstrapper trades Credentials for the {token, session_key, ws_url}
// triple. The default client wires this to bootstrap.Fetch.
type Bootstrapper func(ctx context.Context, baseURL string, creds bootstrap.Credentials) (bootstrap.Result, error)

// Option configures a Client at construction.
type Option func(*Client)

// WithDialer overrides the transport dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithBootstrapper overrides the HTTP bootstrap exchange.
func WithBootstrapper(b Bootstrapper) Option {
	return func(c *Client) { c.bootstrap = b }
}

// WithSettings overrides the connection-tuning defaults.
func WithSettings(s config.Settings) Option {
	return func(c *Client) { c.settings = s }
}

// WithInstruments attaches telemetry instruments.
func WithInstruments(in *telemetry.Instruments) Option {
	return func(c *Client) { c.instruments = in }
}

// Client is the protocol engine's facade. The zero value is not usable;
// construct with New.
type Client struct {
	dial      Dialer
	bootstrap Bootstrapper
	settings  config.Settings

	instruments *telemetry.Instruments

	mu         sync.Mutex
	conn       transport.Conn
	sessionKey [32]byte
	password   string
	machine    *session.Machine
	book       *book.Book
	tokenPhase bool
	cancel     context.CancelFunc
	wg         conc.WaitGroup

	connected atomic.Bool

	requestIDSeq atomic.Int32

	pendingMu sync.Mutex
	pending   map[int32]*pendingEntry

	events  chan Event
	outbox  chan outboundFrame
	limiter *rate.Limiter
}

type outboundFrame struct {
	command uint16
	data    []byte
}

type tradeResult struct {
	success *TradeSuccess
	failed  *TradeFailed
	err     error
}

type pendingEntry struct {
	ch     chan tradeResult
	sentAt time.Time
}

// New constructs a Client wired to the default bootstrap+transport
// convenience implementations (spec.md §6's "MAY bundle a default"
// allowance), overridable via Option.
func New(opts ...Option) *Client {
	c := &Client{
		settings: config.Default(),
		book:     book.New(),
		machine:  session.New(),
		pending:  make(map[int32]*pendingEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = func(ctx context.Context, wsURL string) (transport.Conn, error) {
			return transport.Dial(ctx, wsURL, transport.Options{DialTimeout: c.settings.DialTimeout})
		}
	}
	if c.bootstrap == nil {
		c.bootstrap = bootstrap.Fetch
	}
	c.events = make(chan Event, c.settings.EventChannelCapacity)
	c.outbox = make(chan outboundFrame, c.settings.RequestChannelCapacity)
	c.limiter = rate.NewLimiter(rate.Limit(20), 5)
	c.requestIDSeq.Store(0)
	return c
}

// Book exposes the live order book for read access.
func (c *Client) Book() *book.Book {
	return c.book
}

// IsConnected reports whether the transport is open and the session has not
// been closed.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Connect performs the full login handshake: dials the transport, sends the
// command-0 token frame, and starts the reader/writer tasks. It returns once
// the transport is open and the writer/reader tasks are running; it does
// not block for Authenticated (watch the event stream for that).
func (c *Client) Connect(ctx context.Context, bootstrapURL string, creds bootstrap.Credentials) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errs.Client(errs.ReasonUnexpectedCommand, errs.WithMessage("already connected"))
	}
	c.mu.Unlock()

	result, err := c.bootstrap(ctx, bootstrapURL, creds)
	if err != nil {
		return err
	}

	if err := c.machine.BeginConnect(); err != nil {
		return err
	}

	conn, err := c.dial(ctx, result.WSURL)
	if err != nil {
		c.machine.Disconnect()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.sessionKey = result.SessionKey
	c.password = creds.Password
	c.tokenPhase = true
	c.cancel = cancel
	c.mu.Unlock()

	c.connected.Store(true)

	c.wg.Go(func() { c.writerLoop(runCtx) })
	c.wg.Go(func() { c.readerLoop(runCtx) })

	tokenPayload, err := session.TokenPayload(result.Token)
	if err != nil {
		c.Disconnect()
		return err
	}
	return c.enqueue(ctx, session.CmdToken, tokenPayload)
}

// Disconnect stops the reader/writer tasks, closes the transport, resolves
// any in-flight trade futures with ClientError::Disconnected, and emits a
// final Disconnected event (spec.md §5 Cancellation).
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()

	if c.connected.CompareAndSwap(true, false) {
		c.machine.Disconnect()
		c.failAllPending(errs.Client(errs.ReasonDisconnected))
		c.publish(Event{Kind: EventDisconnected})
	}
}

// NextEvent blocks for the next event, or returns ctx.Err() if ctx is done
// first.
func (c *Client) NextEvent(ctx context.Context) (Event, error) {
	select {
	case evt, ok := <-c.events:
		if !ok {
			return Event{}, errs.Client(errs.ReasonDisconnected)
		}
		return evt, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (c *Client) nextRequestID() int32 {
	return c.requestIDSeq.Add(1)
}

func (c *Client) enqueue(ctx context.Context, command uint16, data []byte) error {
	if !c.connected.Load() && command != session.CmdToken {
		return errs.Client(errs.ReasonNotConnected)
	}
	select {
	case c.outbox <- outboundFrame{command: command, data: data}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) registerPending(requestID int32) chan tradeResult {
	entry := &pendingEntry{ch: make(chan tradeResult, 1), sentAt: time.Now()}
	c.pendingMu.Lock()
	c.pending[requestID] = entry
	c.pendingMu.Unlock()
	return entry.ch
}

func (c *Client) resolvePending(requestID int32, res tradeResult) bool {
	c.pendingMu.Lock()
	entry, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return false
	}
	c.instruments.RecordTradeLatencyMillis(float64(time.Since(entry.sentAt).Milliseconds()))
	entry.ch <- res
	close(entry.ch)
	return true
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int32]*pendingEntry)
	c.pendingMu.Unlock()
	for _, entry := range pending {
		entry.ch <- tradeResult{err: err}
		close(entry.ch)
	}
}

func (c *Client) publish(evt Event) {
	select {
	case c.events <- evt:
		return
	default:
	}
	// Bounded channel full: drop the oldest queued event and log a warning
	// rather than stall the reader task (spec.md §5 overflow policy).
	select {
	case <-c.events:
	default:
	}
	log.Printf("mt4gw: event channel full, dropping oldest event to admit %v", evt.Kind)
	c.instruments.RecordDroppedEvent()
	select {
	case c.events <- evt:
	default:
	}
}

// historySeedNotifyType applies spec.md §4.4's history-seeding rule: an
// order from a command-5 response is Closed if it is not still open by its
// own fields, otherwise New.
func historySeedNotifyType(o records.Order) records.NotifyType {
	if o.IsOpen() {
		return records.NotifyNewOrder
	}
	return records.NotifyClosed
}
