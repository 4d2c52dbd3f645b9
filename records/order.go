// Package records implements the fixed-layout binary structures of the MT4
// Web Terminal wire protocol: Order, OrderUpdate, TradeRequest,
// TradeResponse, and the history time-range payload. All integer and float
// fields are little-endian; offsets are taken from the reference client's
// minified source and are not self-describing, hence the fixed-offset
// parsing below rather than a generic struct tag codec.
package records

import (
	"bytes"
	"encoding/binary"
	"math"
	"unicode/utf8"

	"github.com/coachpo/mt4gw/errs"
)

// OrderSize is the fixed byte length of one Order record.
const OrderSize = 161

// Command identifies the order type MT4 assigns to an Order.
type Command int32

const (
	CommandBuy       Command = 0
	CommandSell      Command = 1
	CommandBuyLimit  Command = 2
	CommandSellLimit Command = 3
	CommandBuyStop   Command = 4
	CommandSellStop  Command = 5
)

// Order mirrors the 161-byte MT4 order record. Fields not named in the
// protocol README are preserved opaquely in Reserved and must round-trip
// without semantic interpretation (spec §9 Open Questions).
type Order struct {
	Ticket     int32
	Symbol     string
	Digits     int32
	Cmd        Command
	Volume     int32 // lots * 10000
	OpenTime   int32 // unix seconds
	State      int32
	OpenPrice  float64
	SL         float64
	TP         float64
	CloseTime  int32 // 0 = still open
	Expiration int32
	Commission float64
	Swap       float64
	Profit     float64
	Comment    string
	ClosePrice float64

	// Raw holds the full 161-byte record exactly as received, letting callers
	// round-trip offsets this struct does not interpret.
	Raw [OrderSize]byte
}

// IsOpen reports whether the order is still open per its own fields, i.e.
// close_time == 0 and close_price == open_price (spec §4.4 history seeding
// rule, restated from the order's own perspective).
func (o Order) IsOpen() bool {
	return o.CloseTime == 0 && o.ClosePrice == o.OpenPrice
}

// OrderFromBytes parses one 161-byte Order record at the given offset.
func OrderFromBytes(buf []byte, offset int) (Order, error) {
	if offset < 0 || len(buf) < offset+OrderSize {
		return Order{}, errs.Protocol(errs.ReasonTruncatedRecord,
			errs.WithMessage("buffer too short for an Order record"))
	}
	rec := buf[offset : offset+OrderSize]

	var o Order
	copy(o.Raw[:], rec)

	o.Ticket = int32(binary.LittleEndian.Uint32(rec[0:4]))
	o.Symbol = cStringAscii(rec[4:16])
	o.Digits = int32(binary.LittleEndian.Uint32(rec[16:20]))
	o.Cmd = Command(int32(binary.LittleEndian.Uint32(rec[20:24])))
	o.Volume = int32(binary.LittleEndian.Uint32(rec[24:28]))
	o.OpenTime = int32(binary.LittleEndian.Uint32(rec[28:32]))
	o.State = int32(binary.LittleEndian.Uint32(rec[32:36]))
	o.OpenPrice = math.Float64frombits(binary.LittleEndian.Uint64(rec[36:44]))
	o.SL = math.Float64frombits(binary.LittleEndian.Uint64(rec[44:52]))
	o.TP = math.Float64frombits(binary.LittleEndian.Uint64(rec[52:60]))
	o.CloseTime = int32(binary.LittleEndian.Uint32(rec[60:64]))
	o.Expiration = int32(binary.LittleEndian.Uint32(rec[64:68]))
	o.Commission = math.Float64frombits(binary.LittleEndian.Uint64(rec[69:77]))
	o.Swap = math.Float64frombits(binary.LittleEndian.Uint64(rec[85:93]))
	o.Profit = math.Float64frombits(binary.LittleEndian.Uint64(rec[93:101]))
	o.Comment = cStringUTF8Lossy(rec[121:153])
	o.ClosePrice = math.Float64frombits(binary.LittleEndian.Uint64(rec[153:161]))

	return o, nil
}

// OrdersFromBytes parses n = floor(len(buf)/161) consecutive Order records,
// the layout used for commands 4 and 5 (current positions, history).
func OrdersFromBytes(buf []byte) ([]Order, error) {
	n := len(buf) / OrderSize
	orders := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		o, err := OrderFromBytes(buf, i*OrderSize)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

func cStringAscii(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		b = b[:idx]
	}
	return string(b)
}

func cStringUTF8Lossy(b []byte) string {
	if idx := bytes.IndexByte(b, 0); idx >= 0 {
		b = b[:idx]
	}
	if utf8.Valid(b) {
		return string(b)
	}
	return string([]rune(string(b)))
}
