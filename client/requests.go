package client

import (
	"context"

	"github.com/coachpo/mt4gw/errs"
	"github.com/coachpo/mt4gw/records"
	"github.com/coachpo/mt4gw/session"
)

// TradeFuture correlates a command-12 trade request to its response
// (spec.md §4.6): the facade delivers the matching TradeResponse exactly
// once, either here or as a RawMessage/TradeSuccess/TradeFailed event if
// nothing is awaiting it.
type TradeFuture struct {
	requestID int32
	ch        chan tradeResult
}

// RequestID is the request_id this future was registered under.
func (f *TradeFuture) RequestID() int32 {
	return f.requestID
}

// Wait blocks for the matching response. A TradeError (errs.KindTrade)
// result is returned as an error rather than a zero TradeSuccess.
func (f *TradeFuture) Wait(ctx context.Context) (TradeSuccess, error) {
	select {
	case res := <-f.ch:
		switch {
		case res.err != nil:
			return TradeSuccess{}, res.err
		case res.failed != nil:
			return TradeSuccess{}, errs.Trade(int(res.failed.Code), errs.WithMessage(res.failed.Message))
		default:
			return *res.success, nil
		}
	case <-ctx.Done():
		return TradeSuccess{}, ctx.Err()
	}
}

// sendTrade enqueues req as command 12 and registers correlationID as the
// value the matching TradeResponse.RequestID must echo. For new/pending
// orders req.Ticket is the freshly minted request_id itself (the protocol
// has no real ticket yet); for a close request the order's own ticket
// already uniquely identifies the in-flight request, so it doubles as the
// correlation id (spec.md §6).
func (c *Client) sendTrade(ctx context.Context, req records.TradeRequest, correlationID int32) (*TradeFuture, error) {
	if !c.machine.CanSendBusinessCommand() {
		return nil, errs.Client(errs.ReasonNotConnected, errs.WithMessage("trade request sent before authentication"))
	}
	ch := c.registerPending(correlationID)
	if err := c.enqueue(ctx, session.CmdTrade, req.Bytes()); err != nil {
		c.resolvePending(correlationID, tradeResult{err: err})
		return nil, err
	}
	return &TradeFuture{requestID: correlationID, ch: ch}, nil
}

// Buy opens a market buy order. sl and tp are optional (nil means "not set").
func (c *Client) Buy(ctx context.Context, symbol string, lots float64, sl, tp *float64) (*TradeFuture, error) {
	return c.market(ctx, symbol, lots, records.CommandBuy, sl, tp)
}

// Sell opens a market sell order.
func (c *Client) Sell(ctx context.Context, symbol string, lots float64, sl, tp *float64) (*TradeFuture, error) {
	return c.market(ctx, symbol, lots, records.CommandSell, sl, tp)
}

func (c *Client) market(ctx context.Context, symbol string, lots float64, cmd records.Command, sl, tp *float64) (*TradeFuture, error) {
	requestID := c.nextRequestID()
	req := records.TradeRequest{
		Type:   records.RequestInstant,
		Cmd:    cmd,
		Ticket: requestID,
		Symbol: symbol,
		Volume: records.LotsToTradeRequestVolume(lots),
		Price:  0.0,
		SL:     deref(sl),
		TP:     deref(tp),
	}
	return c.sendTrade(ctx, req, requestID)
}

// BuyLimit places a pending buy-limit order at price.
func (c *Client) BuyLimit(ctx context.Context, symbol string, lots, price float64, sl, tp *float64) (*TradeFuture, error) {
	return c.placePendingOrder(ctx, symbol, lots, price, records.CommandBuyLimit, sl, tp)
}

// SellLimit places a pending sell-limit order at price.
func (c *Client) SellLimit(ctx context.Context, symbol string, lots, price float64, sl, tp *float64) (*TradeFuture, error) {
	return c.placePendingOrder(ctx, symbol, lots, price, records.CommandSellLimit, sl, tp)
}

func (c *Client) placePendingOrder(ctx context.Context, symbol string, lots, price float64, cmd records.Command, sl, tp *float64) (*TradeFuture, error) {
	requestID := c.nextRequestID()
	req := records.TradeRequest{
		Type:   records.RequestPending,
		Cmd:    cmd,
		Ticket: requestID,
		Symbol: symbol,
		Volume: records.LotsToTradeRequestVolume(lots),
		Price:  price,
		SL:     deref(sl),
		TP:     deref(tp),
	}
	return c.sendTrade(ctx, req, requestID)
}

// CloseOrder closes ticket, an existing open position on symbol, for lots.
func (c *Client) CloseOrder(ctx context.Context, ticket int32, symbol string, lots float64) (*TradeFuture, error) {
	req := records.TradeRequest{
		Type:   records.RequestCloseInstant,
		Ticket: ticket,
		Symbol: symbol,
		Volume: records.LotsToTradeRequestVolume(lots),
	}
	return c.sendTrade(ctx, req, ticket)
}

// CancelOrder deletes ticket, an existing pending (limit/stop) order on
// symbol. Like CloseOrder, the order's own ticket is already known and
// doubles as the correlation id.
func (c *Client) CancelOrder(ctx context.Context, ticket int32, symbol string) (*TradeFuture, error) {
	req := records.TradeRequest{
		Type:   records.RequestCancel,
		Cmd:    records.CommandBuy,
		Ticket: ticket,
		Symbol: symbol,
	}
	return c.sendTrade(ctx, req, ticket)
}

// RequestAccountInfo re-requests command 3's account-info payload.
func (c *Client) RequestAccountInfo(ctx context.Context) error {
	return c.enqueue(ctx, session.CmdAccountInfo, nil)
}

// RequestOrderHistory requests the full order history (no time range).
func (c *Client) RequestOrderHistory(ctx context.Context) error {
	return c.enqueue(ctx, session.CmdHistory, records.EmptyHistoryRange())
}

// RequestOrderHistoryRange requests order history between start and end,
// unix seconds.
func (c *Client) RequestOrderHistoryRange(ctx context.Context, start, end int32) error {
	rng := records.HistoryRange{Start: start, End: end}
	return c.enqueue(ctx, session.CmdHistory, rng.Bytes())
}

// RequestCurrentPositions manually triggers the command-4 current-positions
// request.
func (c *Client) RequestCurrentPositions(ctx context.Context) error {
	return c.enqueue(ctx, session.CmdCurrentOrders, nil)
}

// Ping sends an empty command-51 frame. The matching reply surfaces as a
// Pong event. Cadence is the caller's responsibility (spec.md §5
// recommends 30s).
func (c *Client) Ping(ctx context.Context) error {
	return c.enqueue(ctx, session.CmdPing, nil)
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
