package records

import (
	"encoding/binary"
	"math"
)

// TradeRequestSize is the fixed byte length of a TradeRequest.
const TradeRequestSize = 95

// RequestType is the outer classification of a trade request.
type RequestType uint8

const (
	RequestInstant      RequestType = 64 // market order
	RequestPending      RequestType = 67 // pending (limit/stop) order
	RequestCloseInstant RequestType = 68 // close an existing position
	RequestCancel       RequestType = 72 // delete a pending order
)

// TradeRequest mirrors the 95-byte trade request record. Volume here is
// lots*100, a different scaling than Order.Volume's lots*10000 (spec §9) —
// use the Lots helpers in lots.go rather than writing Volume by hand.
type TradeRequest struct {
	Type       RequestType
	Cmd        Command
	Ticket     int32
	Symbol     string
	Volume     int32 // lots * 100
	Price      float64
	SL         float64
	TP         float64
	Slippage   int32
	Comment    string
	Expiration int32
}

// Bytes serializes the TradeRequest into its fixed 95-byte wire layout.
func (r TradeRequest) Bytes() []byte {
	buf := make([]byte, TradeRequestSize)

	buf[0] = byte(r.Type)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(int16(r.Cmd)))
	binary.LittleEndian.PutUint32(buf[3:7], uint32(r.Ticket))
	// buf[7:11] reserved.
	putCString(buf[11:23], r.Symbol)
	binary.LittleEndian.PutUint32(buf[23:27], uint32(r.Volume))
	binary.LittleEndian.PutUint64(buf[27:35], math.Float64bits(r.Price))
	binary.LittleEndian.PutUint64(buf[35:43], math.Float64bits(r.SL))
	binary.LittleEndian.PutUint64(buf[43:51], math.Float64bits(r.TP))
	binary.LittleEndian.PutUint32(buf[51:55], uint32(r.Slippage))
	putCString(buf[55:87], r.Comment)
	binary.LittleEndian.PutUint32(buf[87:91], uint32(r.Expiration))
	// buf[91:95] reserved.

	return buf
}

// putCString writes s into dst as ASCII/UTF-8, NUL-padded or truncated to
// len(dst) bytes.
func putCString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	n := copy(dst, s)
	_ = n
}
