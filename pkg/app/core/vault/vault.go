// Package vault holds user funds in custody for the exchange: per
// (asset, user) balances for the native asset and the ledger token.
// The native asset is tracked by value under a reserved sentinel; the
// token moves through the ledger into and out of the vault's own
// ledger account.
package vault

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/exchangecity/exchanged/pkg/app/core/ledger"
	"github.com/exchangecity/exchanged/pkg/events"
)

// NativeAsset is the reserved asset identifier for the native base
// asset. It is never a valid token.
var NativeAsset = common.Address{}

var ErrInvalidAsset = errors.New("invalid asset")

type Vault struct {
	mu       sync.RWMutex
	ledger   *ledger.Ledger
	addr     common.Address // the vault's own identity on the ledger
	balances map[common.Address]map[common.Address]*big.Int // asset -> user -> amount
	log      *events.Log
}

// New creates a vault that custodies token funds under addr on l.
// Users must approve addr on the ledger before depositing tokens.
func New(l *ledger.Ledger, addr common.Address, log *events.Log) *Vault {
	return &Vault{
		ledger:   l,
		addr:     addr,
		balances: make(map[common.Address]map[common.Address]*big.Int),
		log:      log,
	}
}

// Address returns the vault's ledger identity.
func (v *Vault) Address() common.Address { return v.addr }

// Balance returns the custodial balance of asset held for user.
func (v *Vault) Balance(asset, user common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.balance(asset, user))
}

// DepositNative credits user's native custody by amount. The value is
// attached to the call by the surrounding environment, so the deposit
// itself always succeeds.
func (v *Vault) DepositNative(user common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.credit(NativeAsset, user, amount)
	v.emitDeposit(NativeAsset, user, amount, bal)
	return nil
}

// WithdrawNative debits user's native custody and releases the value
// back to the caller.
func (v *Vault) WithdrawNative(user common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.balance(NativeAsset, user)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("withdraw %s native for %s: %w", amount, user.Hex(), ledger.ErrInsufficientBalance)
	}
	bal = v.debit(NativeAsset, user, amount)
	v.emitWithdraw(NativeAsset, user, amount, bal)
	return nil
}

// DepositToken pulls amount of asset from user via the ledger (the
// user must have approved the vault) and credits custody.
func (v *Vault) DepositToken(user, asset common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if asset == NativeAsset {
		return fmt.Errorf("deposit token with native sentinel: %w", ErrInvalidAsset)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Pull first: if the allowance or balance is short the ledger
	// rejects and nothing here has changed.
	if err := v.ledger.TransferFrom(v.addr, user, v.addr, amount); err != nil {
		return fmt.Errorf("deposit token: %w", err)
	}
	bal := v.credit(asset, user, amount)
	v.emitDeposit(asset, user, amount, bal)
	return nil
}

// WithdrawToken debits custody and pushes amount of asset back to user
// via the ledger.
func (v *Vault) WithdrawToken(user, asset common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if asset == NativeAsset {
		return fmt.Errorf("withdraw token with native sentinel: %w", ErrInvalidAsset)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.balance(asset, user).Cmp(amount) < 0 {
		return fmt.Errorf("withdraw %s of %s for %s: %w", amount, asset.Hex(), user.Hex(), ledger.ErrInsufficientBalance)
	}
	// Push before debiting custody so a ledger refusal leaves custody
	// untouched. The vault's ledger balance covers every custodial
	// token balance, so this only fails on internal inconsistency.
	if err := v.ledger.Transfer(v.addr, user, amount); err != nil {
		return fmt.Errorf("withdraw token: %w", err)
	}
	bal := v.debit(asset, user, amount)
	v.emitWithdraw(asset, user, amount, bal)
	return nil
}

// Settle atomically applies one fill against custody balances:
//
//	taker  -(amountGet+fee) tokenGet   +amountGive tokenGive
//	maker  +amountGet        tokenGet  -amountGive tokenGive
//	feeTo  +fee              tokenGet
//
// Both debits are verified before anything moves; on any shortfall the
// balances are exactly as before.
func (v *Vault) Settle(taker, maker, feeTo, tokenGet common.Address, amountGet, fee *big.Int, tokenGive common.Address, amountGive *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	owed := new(big.Int).Add(amountGet, fee)
	if v.balance(tokenGet, taker).Cmp(owed) < 0 {
		return fmt.Errorf("taker %s owes %s of %s: %w", taker.Hex(), owed, tokenGet.Hex(), ledger.ErrInsufficientBalance)
	}
	if v.balance(tokenGive, maker).Cmp(amountGive) < 0 {
		return fmt.Errorf("maker %s owes %s of %s: %w", maker.Hex(), amountGive, tokenGive.Hex(), ledger.ErrInsufficientBalance)
	}

	v.debit(tokenGet, taker, owed)
	v.credit(tokenGet, maker, amountGet)
	v.credit(tokenGet, feeTo, fee)
	v.debit(tokenGive, maker, amountGive)
	v.credit(tokenGive, taker, amountGive)
	return nil
}

// balance returns the live entry, zero-valued when absent. Lock held.
func (v *Vault) balance(asset, user common.Address) *big.Int {
	if m := v.balances[asset]; m != nil {
		if b := m[user]; b != nil {
			return b
		}
	}
	return new(big.Int)
}

func (v *Vault) credit(asset, user common.Address, amount *big.Int) *big.Int {
	m := v.balances[asset]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		v.balances[asset] = m
	}
	b := m[user]
	if b == nil {
		b = new(big.Int)
		m[user] = b
	}
	b.Add(b, amount)
	return b
}

func (v *Vault) debit(asset, user common.Address, amount *big.Int) *big.Int {
	m := v.balances[asset]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		v.balances[asset] = m
	}
	b := m[user]
	if b == nil {
		b = new(big.Int)
		m[user] = b
	}
	b.Sub(b, amount)
	return b
}

func (v *Vault) emitDeposit(asset, user common.Address, amount, balance *big.Int) {
	if v.log == nil {
		return
	}
	v.log.Append(events.Record{Kind: events.KindDeposit, Deposit: &events.Deposit{
		Asset: asset, User: user,
		Amount:  new(big.Int).Set(amount),
		Balance: new(big.Int).Set(balance),
	}})
}

func (v *Vault) emitWithdraw(asset, user common.Address, amount, balance *big.Int) {
	if v.log == nil {
		return
	}
	v.log.Append(events.Record{Kind: events.KindWithdraw, Withdraw: &events.Withdraw{
		Asset: asset, User: user,
		Amount:  new(big.Int).Set(amount),
		Balance: new(big.Int).Set(balance),
	}})
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("amount must be a non-negative integer: %w", ledger.ErrInvalidAmount)
	}
	return nil
}
