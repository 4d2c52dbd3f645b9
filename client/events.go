package client

import "github.com/coachpo/mt4gw/records"

// Kind discriminates the tagged union of events the facade publishes
// (spec.md §6's Event variants).
type Kind int

const (
	EventAuthenticated Kind = iota
	EventAuthFailed
	EventOrderUpdate
	EventTradeSuccess
	EventTradeFailed
	EventPong
	EventDisconnected
	EventError
	EventRawMessage
)

func (k Kind) String() string {
	switch k {
	case EventAuthenticated:
		return "Authenticated"
	case EventAuthFailed:
		return "AuthFailed"
	case EventOrderUpdate:
		return "OrderUpdate"
	case EventTradeSuccess:
		return "TradeSuccess"
	case EventTradeFailed:
		return "TradeFailed"
	case EventPong:
		return "Pong"
	case EventDisconnected:
		return "Disconnected"
	case EventError:
		return "Error"
	case EventRawMessage:
		return "RawMessage"
	default:
		return "Unknown"
	}
}

// TradeSuccess carries a successful command-12 response not claimed by an
// awaited TradeFuture.
type TradeSuccess struct {
	RequestID int32
	Status    int32
}

// TradeFailed carries a failed command-12 response not claimed by an
// awaited TradeFuture.
type TradeFailed struct {
	Code    int32
	Message string
}

// RawMessage carries a frame the facade did not otherwise interpret: an
// unknown command, or a command-12 response whose request_id matched no
// pending future.
type RawMessage struct {
	Command   uint16
	ErrorCode byte
	Data      []byte
}

// Event is one entry of the facade's typed event stream. Only the field
// matching Kind is meaningful.
type Event struct {
	Kind         Kind
	AuthFailCode byte
	Update       records.OrderUpdate
	TradeSuccess TradeSuccess
	TradeFailed  TradeFailed
	ErrorMessage string
	Raw          RawMessage
}
