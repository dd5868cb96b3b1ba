// Package ledger implements the exchange's fungible token: balance
// bookkeeping with owner/spender allowances. The full supply is minted
// to a deployer identity at construction; every mutation is attributed
// to an explicit caller and is all-or-nothing.
package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/exchangecity/exchanged/pkg/events"
)

const (
	Name     = "Exchange City"
	Symbol   = "EXC"
	Decimals = 18
)

var (
	ErrInvalidRecipient      = errors.New("invalid recipient")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// InitialSupply returns the fixed total supply: 1,000,000 whole tokens
// at 18 decimals.
func InitialSupply() *big.Int {
	return Units(1_000_000)
}

type Ledger struct {
	mu          sync.RWMutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	log         *events.Log
}

// New mints the entire supply to deployer.
func New(deployer common.Address, log *events.Log) *Ledger {
	supply := InitialSupply()
	l := &Ledger{
		totalSupply: supply,
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		log:         log,
	}
	l.balances[deployer] = new(big.Int).Set(supply)
	return l
}

func (l *Ledger) TotalSupply() *big.Int {
	return new(big.Int).Set(l.totalSupply)
}

func (l *Ledger) BalanceOf(owner common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balance(owner))
}

func (l *Ledger) Allowance(owner, spender common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if m := l.allowances[owner]; m != nil {
		if a := m[spender]; a != nil {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

// Transfer moves amount from the caller to to.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to zero address: %w", ErrInvalidRecipient)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balance(from).Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %s: %w", amount, from.Hex(), ErrInsufficientBalance)
	}
	l.move(from, to, amount)

	l.emit(events.Record{Kind: events.KindTransfer, Transfer: &events.Transfer{
		From: from, To: to, Value: new(big.Int).Set(amount),
	}})
	return nil
}

// Approve sets (not adds) the caller's allowance for spender.
func (l *Ledger) Approve(owner, spender common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if spender == (common.Address{}) {
		return fmt.Errorf("approve zero address: %w", ErrInvalidRecipient)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.allowances[owner]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		l.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)

	l.emit(events.Record{Kind: events.KindApproval, Approval: &events.Approval{
		Owner: owner, Spender: spender, Value: new(big.Int).Set(amount),
	}})
	return nil
}

// TransferFrom moves amount from owner to to on the authority of the
// calling spender's allowance, which is decremented by exactly amount.
func (l *Ledger) TransferFrom(spender, owner, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to zero address: %w", ErrInvalidRecipient)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowanceLocked(owner, spender)
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("spender %s allowance from %s: %w", spender.Hex(), owner.Hex(), ErrInsufficientAllowance)
	}
	if l.balance(owner).Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %s: %w", amount, owner.Hex(), ErrInsufficientBalance)
	}

	allowance.Sub(allowance, amount)
	l.move(owner, to, amount)

	l.emit(events.Record{Kind: events.KindTransfer, Transfer: &events.Transfer{
		From: owner, To: to, Value: new(big.Int).Set(amount),
	}})
	return nil
}

// balance returns the live balance entry, zero-valued when absent.
// Callers must hold the lock and must not retain the pointer.
func (l *Ledger) balance(addr common.Address) *big.Int {
	if b := l.balances[addr]; b != nil {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) allowanceLocked(owner, spender common.Address) *big.Int {
	m := l.allowances[owner]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		l.allowances[owner] = m
	}
	a := m[spender]
	if a == nil {
		a = new(big.Int)
		m[spender] = a
	}
	return a
}

func (l *Ledger) move(from, to common.Address, amount *big.Int) {
	fromBal := l.balance(from)
	l.balances[from] = fromBal.Sub(fromBal, amount)
	toBal := l.balance(to)
	l.balances[to] = toBal.Add(toBal, amount)
}

func (l *Ledger) emit(r events.Record) {
	if l.log != nil {
		l.log.Append(r)
	}
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("amount must be a non-negative integer: %w", ErrInvalidAmount)
	}
	return nil
}
