// Package book tracks orders: creation under sequential ids,
// maker-only cancellation, and the filled/cancelled lifecycle flags.
// Maker funding is deliberately not checked at creation; sufficiency
// is the matching engine's concern at fill time.
package book

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/exchangecity/exchanged/pkg/app/core/ledger"
	"github.com/exchangecity/exchanged/pkg/events"
	"github.com/exchangecity/exchanged/pkg/util"
)

var (
	ErrNotFound         = errors.New("order not found")
	ErrUnauthorized     = errors.New("not the order maker")
	ErrAlreadyFilled    = errors.New("order already filled")
	ErrAlreadyCancelled = errors.New("order already cancelled")
)

// Order is immutable once created. AmountGet is what the maker wants
// in TokenGet units; AmountGive is what the maker surrenders in
// TokenGive units. Timestamp is unix milliseconds at creation.
type Order struct {
	ID         uint64
	Maker      common.Address
	TokenGet   common.Address
	AmountGet  *big.Int
	TokenGive  common.Address
	AmountGive *big.Int
	Timestamp  int64
}

func (o *Order) clone() Order {
	return Order{
		ID:         o.ID,
		Maker:      o.Maker,
		TokenGet:   o.TokenGet,
		AmountGet:  new(big.Int).Set(o.AmountGet),
		TokenGive:  o.TokenGive,
		AmountGive: new(big.Int).Set(o.AmountGive),
		Timestamp:  o.Timestamp,
	}
}

type Book struct {
	mu        sync.RWMutex
	orders    map[uint64]*Order
	filled    map[uint64]bool
	cancelled map[uint64]bool
	count     uint64
	clock     util.Clock
	log       *events.Log
}

func New(clock util.Clock, log *events.Log) *Book {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Book{
		orders:    make(map[uint64]*Order),
		filled:    make(map[uint64]bool),
		cancelled: make(map[uint64]bool),
		clock:     clock,
		log:       log,
	}
}

// Make records a new order for maker and returns it. Ids start at 1
// and increase by one per call; they are never reused.
func (b *Book) Make(maker, tokenGet common.Address, amountGet *big.Int, tokenGive common.Address, amountGive *big.Int) (Order, error) {
	if err := checkAmount(amountGet); err != nil {
		return Order{}, err
	}
	if err := checkAmount(amountGive); err != nil {
		return Order{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.count++
	o := &Order{
		ID:         b.count,
		Maker:      maker,
		TokenGet:   tokenGet,
		AmountGet:  new(big.Int).Set(amountGet),
		TokenGive:  tokenGive,
		AmountGive: new(big.Int).Set(amountGive),
		Timestamp:  b.clock.Now().UnixMilli(),
	}
	b.orders[o.ID] = o

	if b.log != nil {
		b.log.Append(events.Record{Kind: events.KindOrder, Order: &events.Order{
			ID: o.ID, Maker: o.Maker,
			TokenGet: o.TokenGet, AmountGet: new(big.Int).Set(o.AmountGet),
			TokenGive: o.TokenGive, AmountGive: new(big.Int).Set(o.AmountGive),
			Timestamp: o.Timestamp,
		}})
	}
	return o.clone(), nil
}

// Cancel marks the order cancelled. Only the maker may cancel, and
// only while neither lifecycle flag is set.
func (b *Book) Cancel(caller common.Address, id uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if caller != o.Maker {
		return fmt.Errorf("order %d belongs to %s: %w", id, o.Maker.Hex(), ErrUnauthorized)
	}
	if err := b.openLocked(id); err != nil {
		return err
	}
	b.cancelled[id] = true

	if b.log != nil {
		b.log.Append(events.Record{Kind: events.KindCancel, Cancel: &events.Cancel{
			ID: o.ID, Maker: o.Maker,
			TokenGet: o.TokenGet, AmountGet: new(big.Int).Set(o.AmountGet),
			TokenGive: o.TokenGive, AmountGive: new(big.Int).Set(o.AmountGive),
			Timestamp: o.Timestamp,
		}})
	}
	return nil
}

// Fill runs settle against the order while holding the book lock and
// flips the filled flag only if settle succeeds. Both lifecycle flags
// are checked first, so terminal orders are never settled.
func (b *Book) Fill(id uint64, settle func(Order) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err := b.openLocked(id); err != nil {
		return err
	}
	if err := settle(o.clone()); err != nil {
		return err
	}
	b.filled[id] = true
	return nil
}

// openLocked rejects any transition once either flag is set.
func (b *Book) openLocked(id uint64) error {
	if b.filled[id] {
		return fmt.Errorf("order %d: %w", id, ErrAlreadyFilled)
	}
	if b.cancelled[id] {
		return fmt.Errorf("order %d: %w", id, ErrAlreadyCancelled)
	}
	return nil
}

// Count returns the number of orders ever created.
func (b *Book) Count() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Get returns a copy of the order.
func (b *Book) Get(id uint64) (Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return o.clone(), nil
}

// Filled reports whether the order has been filled.
func (b *Book) Filled(id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filled[id]
}

// Cancelled reports whether the order has been cancelled.
func (b *Book) Cancelled(id uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cancelled[id]
}

// Open returns copies of all orders with neither flag set, in id
// order. Read surface for the presentation layer.
func (b *Book) Open() []Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Order, 0)
	for id := uint64(1); id <= b.count; id++ {
		if b.filled[id] || b.cancelled[id] {
			continue
		}
		out = append(out, b.orders[id].clone())
	}
	return out
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("amount must be a non-negative integer: %w", ledger.ErrInvalidAmount)
	}
	return nil
}
