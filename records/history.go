package records

import "encoding/binary"

// HistoryRangeSize is the fixed byte length of the command-5 time-range
// payload: start and end as little-endian unix seconds.
const HistoryRangeSize = 8

// HistoryRange is the time-range payload for command 5 (order history).
// An empty payload (zero value serialized to no bytes) means "all history" —
// callers should use EmptyHistoryRange() to request that explicitly.
type HistoryRange struct {
	Start int32
	End   int32
}

// Bytes serializes the range to its 8-byte wire form.
func (r HistoryRange) Bytes() []byte {
	buf := make([]byte, HistoryRangeSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Start))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.End))
	return buf
}

// EmptyHistoryRange returns the zero-length payload meaning "all history".
func EmptyHistoryRange() []byte {
	return nil
}
