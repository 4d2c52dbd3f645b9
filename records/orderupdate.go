package records

import (
	"encoding/binary"
	"math"

	"github.com/coachpo/mt4gw/errs"
)

// OrderUpdateSize is the fixed byte length of one OrderUpdate envelope: a
// 24-byte header followed by one 161-byte Order.
const OrderUpdateSize = 24 + OrderSize // 185

// CloseBySize is the length of a Close-By packet: two back-to-back
// OrderUpdate envelopes in a single frame (spec §4.3, §9).
const CloseBySize = 2 * OrderUpdateSize // 370

// NotifyType discriminates the kind of push carried by an OrderUpdate.
type NotifyType int32

const (
	NotifyNewOrder      NotifyType = 0
	NotifyClosed        NotifyType = 1
	NotifyModified      NotifyType = 2
	NotifyAccountUpdate NotifyType = 3
)

// OrderUpdate is one entry of a command-10 push. For NotifyAccountUpdate,
// Balance/Credit carry the account deltas and Order is not meaningful.
//
// RelatedOrder is always empty: an earlier design merged 370-byte Close-By
// packets into a single update with a nested related order. The normative
// design splits them into two independent updates (spec §4.3, §9), and this
// field is kept only as an always-empty compatibility tombstone.
type OrderUpdate struct {
	NotifyID     uint32
	NotifyType   NotifyType
	Balance      float64 // df
	Credit       float64 // xh
	Order        Order
	RelatedOrder *OrderUpdate

	RawSize int
}

// OrderUpdateFromBytes parses one 185-byte OrderUpdate envelope at offset.
func OrderUpdateFromBytes(buf []byte, offset int) (OrderUpdate, error) {
	var u OrderUpdate
	if offset < 0 || len(buf) < offset+OrderUpdateSize {
		return u, errs.Protocol(errs.ReasonTruncatedRecord,
			errs.WithMessage("buffer too short for an OrderUpdate envelope"))
	}
	header := buf[offset : offset+24]

	u.NotifyID = binary.LittleEndian.Uint32(header[0:4])
	u.NotifyType = NotifyType(int32(binary.LittleEndian.Uint32(header[4:8])))
	u.Balance = math.Float64frombits(binary.LittleEndian.Uint64(header[8:16]))
	u.Credit = math.Float64frombits(binary.LittleEndian.Uint64(header[16:24]))

	order, err := OrderFromBytes(buf, offset+24)
	if err != nil {
		return OrderUpdate{}, err
	}
	u.Order = order
	u.RawSize = OrderUpdateSize
	return u, nil
}

// ParseAllOrderUpdates parses n = floor(len(buf)/185) OrderUpdates at
// consecutive 185-byte offsets. A 370-byte Close-By packet therefore yields
// exactly two independent updates, never one with a populated RelatedOrder
// (spec §4.3, §8). Trailing bytes shorter than 185 are discarded silently.
func ParseAllOrderUpdates(buf []byte) ([]OrderUpdate, error) {
	n := len(buf) / OrderUpdateSize
	updates := make([]OrderUpdate, 0, n)
	for i := 0; i < n; i++ {
		u, err := OrderUpdateFromBytes(buf, i*OrderUpdateSize)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}
