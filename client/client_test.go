package client

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/coachpo/mt4gw/bootstrap"
	"github.com/coachpo/mt4gw/crypto"
	"github.com/coachpo/mt4gw/internal/faketransport"
	"github.com/coachpo/mt4gw/records"
	"github.com/coachpo/mt4gw/session"
	"github.com/coachpo/mt4gw/transport"
	"github.com/coachpo/mt4gw/wire"
)

var testSessionKey = [32]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

func testToken() string {
	return strings.Repeat("a", 64)
}

func newHarness(t *testing.T) (*Client, *faketransport.Conn) {
	t.Helper()
	conn := faketransport.New(32)
	c := New(
		WithDialer(func(ctx context.Context, wsURL string) (transport.Conn, error) { return conn, nil }),
		WithBootstrapper(func(ctx context.Context, baseURL string, creds bootstrap.Credentials) (bootstrap.Result, error) {
			return bootstrap.Result{Token: testToken(), SessionKey: testSessionKey, WSURL: "ws://fake"}, nil
		}),
	)
	return c, conn
}

// rawOrder builds a 161-byte Order record with just the fields the tests
// assert on.
func rawOrder(ticket int32, symbol string, openPrice, closePrice float64, closeTime int32) []byte {
	buf := make([]byte, records.OrderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(ticket))
	copy(buf[4:16], symbol)
	binary.LittleEndian.PutUint64(buf[36:44], math.Float64bits(openPrice))
	binary.LittleEndian.PutUint32(buf[60:64], uint32(closeTime))
	binary.LittleEndian.PutUint64(buf[153:161], math.Float64bits(closePrice))
	return buf
}

func orderUpdateFrame(notifyType records.NotifyType, order []byte) []byte {
	buf := make([]byte, 24+records.OrderSize)
	binary.LittleEndian.PutUint32(buf[0:4], 1)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(notifyType)))
	copy(buf[24:], order)
	return buf
}

func tradeResponseFrame(requestID, status int32) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(requestID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(status))
	return buf
}

func pushFrame(t *testing.T, conn *faketransport.Conn, command uint16, errorCode byte, data []byte) {
	t.Helper()
	key := crypto.AuthKey
	if command != 0 {
		key = testSessionKey
	}
	inner := make([]byte, 5+len(data))
	binary.LittleEndian.PutUint16(inner[0:2], 0xBEEF)
	binary.LittleEndian.PutUint16(inner[2:4], command)
	inner[4] = errorCode
	copy(inner[5:], data)

	ciphertext, err := crypto.Encrypt(key, inner)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	frame := make([]byte, 8+len(ciphertext))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(4+len(ciphertext)))
	binary.LittleEndian.PutUint32(frame[4:8], 1)
	copy(frame[8:], ciphertext)
	conn.Push(frame)
}

// decodeOutboundFrame undoes wire.Encode's outbound layout (random||command||
// data, no error_code field), trying AuthKey first the way KeySelector picks
// it for command 0.
func decodeOutboundFrame(t *testing.T, frame []byte) wire.Decoded {
	t.Helper()
	ciphertext := frame[8:]
	plaintext, err := crypto.Decrypt(crypto.AuthKey, ciphertext)
	if err != nil || len(plaintext) < 4 || binary.LittleEndian.Uint16(plaintext[2:4]) != session.CmdToken {
		plaintext, err = crypto.Decrypt(testSessionKey, ciphertext)
		if err != nil {
			t.Fatalf("decrypt outbound frame: %v", err)
		}
	}
	if len(plaintext) < 4 {
		t.Fatalf("outbound plaintext too short: %d bytes", len(plaintext))
	}
	return wire.Decoded{
		Command: binary.LittleEndian.Uint16(plaintext[2:4]),
		Data:    plaintext[4:],
	}
}

// nextOutbound reads and decodes the next frame the client wrote.
func nextOutbound(t *testing.T, conn *faketransport.Conn) wire.Decoded {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := conn.Next(ctx)
	if err != nil {
		t.Fatalf("expected an outbound frame: %v", err)
	}
	return decodeOutboundFrame(t, frame)
}

func nextEvent(t *testing.T, c *Client) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	evt, err := c.NextEvent(ctx)
	if err != nil {
		t.Fatalf("expected an event: %v", err)
	}
	return evt
}

func authenticate(t *testing.T, c *Client, conn *faketransport.Conn) {
	t.Helper()
	ctx := context.Background()
	if err := c.Connect(ctx, "http://unused", bootstrap.Credentials{Login: "1", Password: "secret", Server: "demo"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sent := nextOutbound(t, conn)
	if sent.Command != session.CmdToken {
		t.Fatalf("first outbound command = %d, want CmdToken", sent.Command)
	}
	pushFrame(t, conn, session.CmdToken, 0, nil)

	sent = nextOutbound(t, conn)
	if sent.Command != session.CmdPassword {
		t.Fatalf("second outbound command = %d, want CmdPassword", sent.Command)
	}
	pushFrame(t, conn, session.CmdPassword, 0, nil)

	evt := nextEvent(t, c)
	if evt.Kind != EventAuthenticated {
		t.Fatalf("event kind = %v, want Authenticated", evt.Kind)
	}

	pushFrame(t, conn, session.CmdAccountInfo, 0, nil)
	sent = nextOutbound(t, conn)
	if sent.Command != session.CmdCurrentOrders {
		t.Fatalf("post-account-info outbound = %d, want CmdCurrentOrders", sent.Command)
	}
}

func TestHappyLoginReachesAuthenticated(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)
	if !c.IsConnected() {
		t.Fatalf("expected IsConnected after handshake")
	}
}

func TestAuthFailurePublishesAuthFailedAndDisconnects(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()

	if err := c.Connect(context.Background(), "http://unused", bootstrap.Credentials{Login: "1", Password: "bad", Server: "demo"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	nextOutbound(t, conn) // token frame
	pushFrame(t, conn, session.CmdToken, 3, nil)

	evt := nextEvent(t, c)
	if evt.Kind != EventAuthFailed {
		t.Fatalf("event kind = %v, want AuthFailed", evt.Kind)
	}
	if evt.AuthFailCode != 3 {
		t.Fatalf("AuthFailCode = %d, want 3", evt.AuthFailCode)
	}

	deadline := time.After(time.Second)
	for c.IsConnected() {
		select {
		case <-deadline:
			t.Fatalf("client never disconnected after auth failure")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCurrentPositionsSeedBook(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)

	order := rawOrder(500, "EURUSD", 1.1, 1.1, 0)
	pushFrame(t, conn, session.CmdCurrentOrders, 0, order)

	evt := nextEvent(t, c)
	if evt.Kind != EventOrderUpdate || evt.Update.Order.Ticket != 500 {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if len(c.Book().OpenPositions()) != 1 {
		t.Fatalf("expected the order to seed open positions")
	}
}

func TestOrderUpdateClosesBookPosition(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)

	pushFrame(t, conn, session.CmdCurrentOrders, 0, rawOrder(700, "GBPUSD", 1.3, 1.3, 0))
	nextEvent(t, c)

	pushFrame(t, conn, session.CmdOrderUpdate, 0, orderUpdateFrame(records.NotifyClosed, rawOrder(700, "GBPUSD", 1.3, 1.31, 100)))
	evt := nextEvent(t, c)
	if evt.Kind != EventOrderUpdate || evt.Update.NotifyType != records.NotifyClosed {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if len(c.Book().OpenPositions()) != 0 {
		t.Fatalf("expected position to leave open")
	}
	if len(c.Book().History()) != 1 {
		t.Fatalf("expected position to land in history")
	}
}

func TestBuySucceedsAndResolvesFuture(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)

	sl, tp := 1.05, 1.2
	future, err := c.Buy(context.Background(), "EURUSD", 0.01, &sl, &tp)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}

	sent := nextOutbound(t, conn)
	if sent.Command != session.CmdTrade {
		t.Fatalf("outbound command = %d, want CmdTrade", sent.Command)
	}
	if sent.Data[0] != byte(records.RequestInstant) {
		t.Fatalf("type byte = %d, want RequestInstant", sent.Data[0])
	}
	if vol := binary.LittleEndian.Uint32(sent.Data[23:27]); vol != 1 {
		t.Fatalf("volume = %d, want 1 (0.01 lots * 100)", vol)
	}

	pushFrame(t, conn, session.CmdTrade, 0, tradeResponseFrame(future.RequestID(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	success, err := future.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if success.RequestID != future.RequestID() || success.Status != 0 {
		t.Fatalf("unexpected success: %+v", success)
	}
}

func TestTradeFailureResolvesFutureAsError(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)

	future, err := c.Sell(context.Background(), "EURUSD", 0.01, nil, nil)
	if err != nil {
		t.Fatalf("Sell: %v", err)
	}
	nextOutbound(t, conn)
	pushFrame(t, conn, session.CmdTrade, 133, tradeResponseFrame(future.RequestID(), 0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := future.Wait(ctx); err == nil {
		t.Fatalf("expected Wait to return an error for a failed trade")
	}
}

func TestCloseOrderCorrelatesByTicket(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)

	future, err := c.CloseOrder(context.Background(), 4242, "EURUSD", 0.01)
	if err != nil {
		t.Fatalf("CloseOrder: %v", err)
	}
	if future.RequestID() != 4242 {
		t.Fatalf("RequestID = %d, want the closed ticket 4242", future.RequestID())
	}
	sent := nextOutbound(t, conn)
	if ticket := int32(binary.LittleEndian.Uint32(sent.Data[3:7])); ticket != 4242 {
		t.Fatalf("outbound ticket = %d, want 4242", ticket)
	}

	pushFrame(t, conn, session.CmdTrade, 0, tradeResponseFrame(4242, 0))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := future.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestCancelOrderCorrelatesByTicket(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)

	future, err := c.CancelOrder(context.Background(), 777, "EURUSD")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if future.RequestID() != 777 {
		t.Fatalf("RequestID = %d, want the cancelled ticket 777", future.RequestID())
	}
	sent := nextOutbound(t, conn)
	if sent.Data[0] != byte(records.RequestCancel) {
		t.Fatalf("request type = %d, want RequestCancel", sent.Data[0])
	}
	if ticket := int32(binary.LittleEndian.Uint32(sent.Data[3:7])); ticket != 777 {
		t.Fatalf("outbound ticket = %d, want 777", ticket)
	}

	pushFrame(t, conn, session.CmdTrade, 0, tradeResponseFrame(777, 0))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := future.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestUnmatchedTradeResponseSurfacesAsEvent(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)

	pushFrame(t, conn, session.CmdTrade, 0, tradeResponseFrame(999, 0))
	evt := nextEvent(t, c)
	if evt.Kind != EventTradeSuccess || evt.TradeSuccess.RequestID != 999 {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestPingRoundTripProducesPongEvent(t *testing.T) {
	c, conn := newHarness(t)
	defer c.Disconnect()
	authenticate(t, c, conn)

	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	sent := nextOutbound(t, conn)
	if sent.Command != session.CmdPing {
		t.Fatalf("outbound command = %d, want CmdPing", sent.Command)
	}
	pushFrame(t, conn, session.CmdPing, 0, nil)
	evt := nextEvent(t, c)
	if evt.Kind != EventPong {
		t.Fatalf("event kind = %v, want Pong", evt.Kind)
	}
}

func TestDisconnectFailsPendingTradeFutures(t *testing.T) {
	c, conn := newHarness(t)
	authenticate(t, c, conn)

	future, err := c.Buy(context.Background(), "EURUSD", 0.01, nil, nil)
	if err != nil {
		t.Fatalf("Buy: %v", err)
	}
	nextOutbound(t, conn)

	c.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := future.Wait(ctx); err == nil {
		t.Fatalf("expected Wait to fail once the client disconnects")
	}
}
