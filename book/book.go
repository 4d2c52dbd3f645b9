// Package book maintains the live in-memory order book: the set of open
// positions and the history list, reconciled from typed OrderUpdate
// notifications per spec §4.5. It also accumulates the account balance
// deltas carried by AccountUpdate notifications (spec §9's df/xh fields).
package book

import (
	"sort"
	"sync"

	"github.com/coachpo/mt4gw/records"
)

// AccountState is the running balance/credit total accumulated from
// AccountUpdate (notify_type=3) deltas. The core does no P&L computation;
// this is the one place it accumulates anything numeric, and only because a
// higher layer needs *some* place to read the cumulative effect of balance
// pushes (spec §9's guidance on naming df/xh honestly).
type AccountState struct {
	Balance float64
	Credit  float64
}

// Book holds open_positions and history keyed by ticket. A ticket appears in
// at most one of the two containers at any time (spec §3 invariant). It is
// guarded by a mutex with short critical sections (spec §5); callers from
// multiple goroutines may safely read and apply updates concurrently, though
// in practice only the reader task calls Apply.
type Book struct {
	mu      sync.Mutex
	open    map[int32]records.Order
	openSeq []int32 // insertion order, for OpenPositions() iteration
	history []records.Order
	account AccountState
}

// New returns an empty Book.
func New() *Book {
	return &Book{
		open:    make(map[int32]records.Order),
		history: make([]records.Order, 0),
	}
}

// Apply reconciles one OrderUpdate into the book per spec §4.5. It returns
// true if the update mutated the open/history containers (false for
// AccountUpdate, which only touches AccountState).
func (b *Book) Apply(u records.OrderUpdate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if u.NotifyType == records.NotifyAccountUpdate {
		b.account.Balance += u.Balance
		b.account.Credit += u.Credit
		return false
	}

	ticket := u.Order.Ticket
	switch u.NotifyType {
	case records.NotifyNewOrder:
		if _, inOpen := b.open[ticket]; !inOpen {
			b.openSeq = append(b.openSeq, ticket)
		}
		b.removeFromHistoryLocked(ticket)
		b.open[ticket] = u.Order

	case records.NotifyClosed:
		b.removeFromOpenLocked(ticket)
		b.history = append(b.history, u.Order)

	case records.NotifyModified:
		if _, inOpen := b.open[ticket]; !inOpen {
			b.openSeq = append(b.openSeq, ticket)
		}
		b.open[ticket] = u.Order
	}
	return true
}

func (b *Book) removeFromOpenLocked(ticket int32) {
	if _, ok := b.open[ticket]; !ok {
		return
	}
	delete(b.open, ticket)
	for i, t := range b.openSeq {
		if t == ticket {
			b.openSeq = append(b.openSeq[:i], b.openSeq[i+1:]...)
			break
		}
	}
}

func (b *Book) removeFromHistoryLocked(ticket int32) {
	for i, o := range b.history {
		if o.Ticket == ticket {
			b.history = append(b.history[:i], b.history[i+1:]...)
			break
		}
	}
}

// OpenPositions returns the open positions in insertion order.
func (b *Book) OpenPositions() []records.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]records.Order, 0, len(b.openSeq))
	for _, ticket := range b.openSeq {
		out = append(out, b.open[ticket])
	}
	return out
}

// History returns the history list in emission order.
func (b *Book) History() []records.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]records.Order, len(b.history))
	copy(out, b.history)
	return out
}

// Account returns the accumulated account balance/credit state.
func (b *Book) Account() AccountState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account
}

// Tickets returns the tickets currently open, sorted ascending — a
// convenience for tests and diagnostics, not used by the reconciliation
// logic itself.
func (b *Book) Tickets() []int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int32, 0, len(b.open))
	for t := range b.open {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
