package client

import (
	"context"
	"log"

	"github.com/coachpo/mt4gw/errs"
	"github.com/coachpo/mt4gw/records"
	"github.com/coachpo/mt4gw/session"
	"github.com/coachpo/mt4gw/wire"
)

// writerLoop owns the transport's send half: only it calls conn.Write, so
// no two frames ever interleave on the wire (spec.md §5). It paces outbound
// frames with a rate.Limiter the way websocket_manager.go's
// waitForControlWindowLocked paces control messages.
func (c *Client) writerLoop(ctx context.Context) {
	keyFor := wire.KeySelector(c.sessionKey)
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-c.outbox:
			if err := c.limiter.Wait(ctx); err != nil {
				return
			}
			encoded, err := wire.Encode(keyFor(frame.command), frame.command, frame.data)
			if err != nil {
				c.publish(Event{Kind: EventError, ErrorMessage: err.Error()})
				continue
			}
			if err := c.conn.Write(ctx, encoded); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.publish(Event{Kind: EventError, ErrorMessage: err.Error()})
				return
			}
		}
	}
}

// readerLoop owns the transport's receive half. It decodes one frame per
// message, advances the session state machine, reconciles the order book,
// and publishes events. Decrypt/protocol/auth failures terminate the
// session (spec.md §7 propagation policy); unknown commands never do.
func (c *Client) readerLoop(ctx context.Context) {
	for {
		frame, err := c.conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			go c.Disconnect()
			return
		}

		c.mu.Lock()
		expectToken := c.tokenPhase
		sessionKey := c.sessionKey
		c.mu.Unlock()

		decoded, err := wire.DecodeAny(sessionKey, expectToken, frame)
		if err != nil {
			c.publish(Event{Kind: EventError, ErrorMessage: err.Error()})
			if errs.Is(err, errs.KindProtocol) {
				go c.Disconnect()
				return
			}
			continue
		}

		if terminate := c.handleInbound(decoded); terminate {
			go c.Disconnect()
			return
		}
	}
}

// handleInbound processes one decoded frame and reports whether the
// session must terminate as a result.
func (c *Client) handleInbound(decoded wire.Decoded) bool {
	switch decoded.Command {
	case session.CmdToken:
		return c.handleToken(decoded.ErrorCode)
	case session.CmdPassword:
		return c.handlePassword(decoded.ErrorCode)
	case session.CmdAccountInfo:
		return c.handleAccountInfo()
	case session.CmdCurrentOrders:
		c.handleOrderList(decoded.Data, records.NotifyNewOrder)
		return false
	case session.CmdHistory:
		c.handleHistoryList(decoded.Data)
		return false
	case session.CmdOrderUpdate:
		c.handleOrderUpdates(decoded.Data)
		return false
	case session.CmdTrade:
		c.handleTradeResponse(decoded.ErrorCode, decoded.Data)
		return false
	case session.CmdPing:
		c.publish(Event{Kind: EventPong})
		return false
	default:
		c.publish(Event{Kind: EventRawMessage, Raw: RawMessage{
			Command:   decoded.Command,
			ErrorCode: decoded.ErrorCode,
			Data:      decoded.Data,
		}})
		return false
	}
}

func (c *Client) handleToken(errorCode byte) (terminate bool) {
	action, err := c.machine.HandleCommand(session.CmdToken, errorCode)
	if err != nil {
		c.instruments.RecordAuthFailure()
		c.publish(Event{Kind: EventAuthFailed, AuthFailCode: errorCode})
		return action == session.ActionClose
	}
	c.mu.Lock()
	c.tokenPhase = false
	c.mu.Unlock()

	if action == session.ActionSendPassword {
		payload := session.PasswordPayload(c.pendingPassword())
		if err := c.enqueue(context.Background(), session.CmdPassword, payload); err != nil {
			c.publish(Event{Kind: EventError, ErrorMessage: err.Error()})
		}
	}
	return false
}

func (c *Client) handlePassword(errorCode byte) (terminate bool) {
	action, err := c.machine.HandleCommand(session.CmdPassword, errorCode)
	if err != nil {
		c.instruments.RecordAuthFailure()
		c.publish(Event{Kind: EventAuthFailed, AuthFailCode: errorCode})
		return action == session.ActionClose
	}
	// Per spec.md §4.4, the Authenticated event fires on the password
	// success transition, even though the state machine's own state name
	// only reaches Authenticated once command 3 arrives.
	c.publish(Event{Kind: EventAuthenticated})
	return false
}

func (c *Client) handleAccountInfo() (terminate bool) {
	action, err := c.machine.HandleCommand(session.CmdAccountInfo, 0)
	if err != nil {
		c.publish(Event{Kind: EventError, ErrorMessage: err.Error()})
		return false
	}
	if action == session.ActionSendCurrentPositions {
		if err := c.enqueue(context.Background(), session.CmdCurrentOrders, nil); err != nil {
			c.publish(Event{Kind: EventError, ErrorMessage: err.Error()})
		}
	}
	return false
}

func (c *Client) handleOrderList(data []byte, notify records.NotifyType) {
	orders, err := records.OrdersFromBytes(data)
	if err != nil {
		log.Printf("mt4gw: dropping truncated order list: %v", err)
		return
	}
	for _, o := range orders {
		update := records.OrderUpdate{NotifyType: notify, Order: o, RawSize: records.OrderSize}
		c.book.Apply(update)
		c.publish(Event{Kind: EventOrderUpdate, Update: update})
	}
}

// handleHistoryList applies the command-5 history-seeding rule (spec.md
// §4.4): each order is Closed or New depending on its own close fields.
func (c *Client) handleHistoryList(data []byte) {
	orders, err := records.OrdersFromBytes(data)
	if err != nil {
		log.Printf("mt4gw: dropping truncated history list: %v", err)
		return
	}
	for _, o := range orders {
		notify := historySeedNotifyType(o)
		update := records.OrderUpdate{NotifyType: notify, Order: o, RawSize: records.OrderSize}
		c.book.Apply(update)
		c.publish(Event{Kind: EventOrderUpdate, Update: update})
	}
}

func (c *Client) handleOrderUpdates(data []byte) {
	updates, err := records.ParseAllOrderUpdates(data)
	if err != nil {
		log.Printf("mt4gw: dropping truncated order update packet: %v", err)
		return
	}
	for _, u := range updates {
		c.book.Apply(u)
		c.publish(Event{Kind: EventOrderUpdate, Update: u})
	}
}

func (c *Client) handleTradeResponse(errorCode byte, data []byte) {
	resp, err := records.TradeResponseFromBytes(data)
	if err != nil {
		c.publish(Event{Kind: EventRawMessage, Raw: RawMessage{Command: session.CmdTrade, ErrorCode: errorCode, Data: data}})
		return
	}

	if errorCode == 0 {
		result := tradeResult{success: &TradeSuccess{RequestID: resp.RequestID, Status: resp.Status}}
		if c.resolvePending(resp.RequestID, result) {
			return
		}
		c.publish(Event{Kind: EventTradeSuccess, TradeSuccess: *result.success})
		return
	}

	failed := &TradeFailed{Code: int32(errorCode), Message: errs.Trade(int(errorCode)).Error()}
	result := tradeResult{failed: failed}
	if c.resolvePending(resp.RequestID, result) {
		return
	}
	c.publish(Event{Kind: EventTradeFailed, TradeFailed: *failed})
}

// pendingPassword retrieves the password stashed by Connect for the
// handshake's second leg.
func (c *Client) pendingPassword() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.password
}
