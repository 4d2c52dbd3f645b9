package records

import (
	"encoding/binary"
	"math"

	"github.com/coachpo/mt4gw/errs"
)

// tradeResponsePrefixSize is the fixed 24-byte prefix before any Order
// records: request_id, status, price1, price2.
const tradeResponsePrefixSize = 24

// TradeResponse mirrors the server's reply to command 12.
type TradeResponse struct {
	RequestID int32
	Status    int32
	Price1    float64
	Price2    float64
	Orders    []Order
}

// TradeResponseFromBytes parses the fixed 24-byte prefix and then
// floor((len(buf)-24)/161) trailing Order records.
func TradeResponseFromBytes(buf []byte) (TradeResponse, error) {
	if len(buf) < tradeResponsePrefixSize {
		return TradeResponse{}, errs.Protocol(errs.ReasonTruncatedRecord,
			errs.WithMessage("buffer too short for a TradeResponse prefix"))
	}
	var r TradeResponse
	r.RequestID = int32(binary.LittleEndian.Uint32(buf[0:4]))
	r.Status = int32(binary.LittleEndian.Uint32(buf[4:8]))
	r.Price1 = math.Float64frombits(binary.LittleEndian.Uint64(buf[8:16]))
	r.Price2 = math.Float64frombits(binary.LittleEndian.Uint64(buf[16:24]))

	orders, err := OrdersFromBytes(buf[tradeResponsePrefixSize:])
	if err != nil {
		return TradeResponse{}, err
	}
	r.Orders = orders
	return r, nil
}
