// Package core re-exports the exchange's subpackages behind one
// import for callers that wire the whole system.
package core

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/exchangecity/exchanged/pkg/app/core/book"
	"github.com/exchangecity/exchanged/pkg/app/core/engine"
	"github.com/exchangecity/exchanged/pkg/app/core/ledger"
	"github.com/exchangecity/exchanged/pkg/app/core/vault"
	"github.com/exchangecity/exchanged/pkg/events"
	"github.com/exchangecity/exchanged/pkg/util"
)

// From ledger package
type Ledger = ledger.Ledger

func NewLedger(deployer common.Address, log *events.Log) *Ledger {
	return ledger.New(deployer, log)
}

// From vault package
type Vault = vault.Vault

var NativeAsset = vault.NativeAsset

func NewVault(l *Ledger, addr common.Address, log *events.Log) *Vault {
	return vault.New(l, addr, log)
}

// From book package
type (
	Order = book.Order
	Book  = book.Book
)

func NewBook(clock util.Clock, log *events.Log) *Book {
	return book.New(clock, log)
}

// From engine package
type Engine = engine.Engine

func NewEngine(b *Book, v *Vault, feeAccount common.Address, feePercent int64, clock util.Clock, log *events.Log) *Engine {
	return engine.New(b, v, feeAccount, feePercent, clock, log)
}
