package records

import (
	"math"

	"github.com/shopspring/decimal"
)

// OrderVolumeScale is Order.Volume's wire scaling: lots * 10000.
const OrderVolumeScale = 10000

// TradeRequestVolumeScale is TradeRequest.Volume's wire scaling: lots * 100.
// This is a wire-format asymmetry, not a bug (spec §9): the two record types
// disagree on how a lot size is encoded, so helpers here are the only place
// that should ever multiply a lots value onto the wire.
const TradeRequestVolumeScale = 100

// LotsToOrderVolume converts a floating-point lot size into Order.Volume's
// wire representation.
func LotsToOrderVolume(lots float64) int32 {
	return int32(math.Round(lots * OrderVolumeScale))
}

// LotsToTradeRequestVolume converts a floating-point lot size into
// TradeRequest.Volume's wire representation.
func LotsToTradeRequestVolume(lots float64) int32 {
	return int32(math.Round(lots * TradeRequestVolumeScale))
}

// OrderVolumeToLots converts Order.Volume back into a lot size.
func OrderVolumeToLots(volume int32) float64 {
	return float64(volume) / OrderVolumeScale
}

// TradeRequestVolumeToLots converts TradeRequest.Volume back into a lot size.
func TradeRequestVolumeToLots(volume int32) float64 {
	return float64(volume) / TradeRequestVolumeScale
}

// DecimalLotsToOrderVolume converts a decimal.Decimal lot size into
// Order.Volume's wire representation without the float rounding a caller
// supplying lots as user-facing decimal input would otherwise accumulate.
func DecimalLotsToOrderVolume(lots decimal.Decimal) int32 {
	return int32(lots.Mul(decimal.NewFromInt(OrderVolumeScale)).Round(0).IntPart())
}

// DecimalLotsToTradeRequestVolume converts a decimal.Decimal lot size into
// TradeRequest.Volume's wire representation.
func DecimalLotsToTradeRequestVolume(lots decimal.Decimal) int32 {
	return int32(lots.Mul(decimal.NewFromInt(TradeRequestVolumeScale)).Round(0).IntPart())
}
