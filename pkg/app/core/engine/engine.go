// Package engine executes fills: the taker accepts an order's terms,
// the vault settles both legs plus the taker-paid fee atomically, and
// the order is marked filled.
package engine

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/exchangecity/exchanged/pkg/app/core/book"
	"github.com/exchangecity/exchanged/pkg/app/core/vault"
	"github.com/exchangecity/exchanged/pkg/events"
	"github.com/exchangecity/exchanged/pkg/util"
)

type Engine struct {
	book       *book.Book
	vault      *vault.Vault
	feeAccount common.Address
	feePercent int64
	clock      util.Clock
	log        *events.Log
}

// New creates an engine. feeAccount and feePercent are fixed for the
// engine's lifetime.
func New(b *book.Book, v *vault.Vault, feeAccount common.Address, feePercent int64, clock util.Clock, log *events.Log) *Engine {
	if clock == nil {
		clock = util.RealClock{}
	}
	return &Engine{
		book:       b,
		vault:      v,
		feeAccount: feeAccount,
		feePercent: feePercent,
		clock:      clock,
		log:        log,
	}
}

func (e *Engine) FeeAccount() common.Address { return e.feeAccount }
func (e *Engine) FeePercent() int64          { return e.feePercent }

// Fee returns the taker-paid fee on amountGet: amountGet × feePercent
// / 100, truncating. Charged in tokenGet units on top of amountGet, so
// the maker receives exactly what the order asked for.
func (e *Engine) Fee(amountGet *big.Int) *big.Int {
	fee := new(big.Int).Mul(amountGet, big.NewInt(e.feePercent))
	return fee.Quo(fee, big.NewInt(100))
}

// FillOrder settles order id against taker. All five balance moves and
// the filled flag commit together or not at all.
func (e *Engine) FillOrder(taker common.Address, id uint64) error {
	var filled book.Order
	var fee *big.Int

	err := e.book.Fill(id, func(o book.Order) error {
		fee = e.Fee(o.AmountGet)
		if err := e.vault.Settle(taker, o.Maker, e.feeAccount, o.TokenGet, o.AmountGet, fee, o.TokenGive, o.AmountGive); err != nil {
			return fmt.Errorf("fill order %d: %w", id, err)
		}
		filled = o
		return nil
	})
	if err != nil {
		return err
	}

	if e.log != nil {
		e.log.Append(events.Record{Kind: events.KindTrade, Trade: &events.Trade{
			ID: filled.ID, Maker: filled.Maker,
			TokenGet: filled.TokenGet, AmountGet: new(big.Int).Set(filled.AmountGet),
			TokenGive: filled.TokenGive, AmountGive: new(big.Int).Set(filled.AmountGive),
			Taker:     taker,
			Timestamp: e.clock.Now().UnixMilli(),
		}})
	}
	return nil
}
