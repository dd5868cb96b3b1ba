package engine

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/exchangecity/exchanged/pkg/app/core/book"
	"github.com/exchangecity/exchanged/pkg/app/core/ledger"
	"github.com/exchangecity/exchanged/pkg/app/core/vault"
	"github.com/exchangecity/exchanged/pkg/events"
	"github.com/exchangecity/exchanged/pkg/util"
)

var (
	deployer  = common.HexToAddress("0xDE00000000000000000000000000000000000000")
	user1     = common.HexToAddress("0x1100000000000000000000000000000000000000") // maker
	user2     = common.HexToAddress("0x2200000000000000000000000000000000000000") // taker
	vaultAddr = common.HexToAddress("0xEE00000000000000000000000000000000000000")
	feeAcct   = common.HexToAddress("0xFE00000000000000000000000000000000000000")
	token     = common.HexToAddress("0x7700000000000000000000000000000000000000")
)

var native = common.Address{}

var testTime = time.UnixMilli(1_700_000_000_000)

type fixture struct {
	ledger *ledger.Ledger
	vault  *vault.Vault
	book   *book.Book
	engine *Engine
	log    *events.Log
}

// newFixture reproduces the original scenario: maker deposits 1 unit
// native; taker holds 2 tokens in custody; maker posts an order
// wanting 1 token for 1 native; feePercent is 10.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := events.NewLog(nil, nil, nil)
	l := ledger.New(deployer, log)
	v := vault.New(l, vaultAddr, log)
	b := book.New(util.FixedClock{T: testTime}, log)
	e := New(b, v, feeAcct, 10, util.FixedClock{T: testTime}, log)

	if err := v.DepositNative(user1, ledger.Units(1)); err != nil {
		t.Fatalf("maker deposit: %v", err)
	}
	if err := l.Transfer(deployer, user2, ledger.Units(2)); err != nil {
		t.Fatalf("fund taker: %v", err)
	}
	if err := l.Approve(user2, vaultAddr, ledger.Units(2)); err != nil {
		t.Fatalf("taker approve: %v", err)
	}
	if err := v.DepositToken(user2, token, ledger.Units(2)); err != nil {
		t.Fatalf("taker deposit: %v", err)
	}
	if _, err := b.Make(user1, token, ledger.Units(1), native, ledger.Units(1)); err != nil {
		t.Fatalf("make order: %v", err)
	}
	return &fixture{ledger: l, vault: v, book: b, engine: e, log: log}
}

func TestFillOrderExecutesTradeAndChargesFee(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.FillOrder(user2, 1); err != nil {
		t.Fatalf("fill: %v", err)
	}

	if got := f.vault.Balance(token, user1); got.Cmp(ledger.Units(1)) != 0 {
		t.Errorf("maker tokens = %s, want 1", got)
	}
	if got := f.vault.Balance(native, user2); got.Cmp(ledger.Units(1)) != 0 {
		t.Errorf("taker native = %s, want 1", got)
	}
	if got := f.vault.Balance(native, user1); got.Sign() != 0 {
		t.Errorf("maker native = %s, want 0", got)
	}
	if got := f.vault.Balance(token, user2); got.Cmp(ledger.Tenths(9)) != 0 {
		t.Errorf("taker tokens = %s, want 0.9", got)
	}
	if got := f.vault.Balance(token, feeAcct); got.Cmp(ledger.Tenths(1)) != 0 {
		t.Errorf("fee account tokens = %s, want 0.1", got)
	}
	if !f.book.Filled(1) {
		t.Error("order not marked filled")
	}
}

func TestFillOrderEmitsTrade(t *testing.T) {
	f := newFixture(t)
	f.engine.FillOrder(user2, 1)

	recs := f.log.Records(0, 0)
	last := recs[len(recs)-1]
	if last.Kind != events.KindTrade {
		t.Fatalf("last record = %s, want trade", last.Kind)
	}
	tr := last.Trade
	if tr.ID != 1 || tr.Maker != user1 || tr.Taker != user2 {
		t.Errorf("bad Trade parties: %+v", tr)
	}
	if tr.TokenGet != token || tr.AmountGet.Cmp(ledger.Units(1)) != 0 ||
		tr.TokenGive != native || tr.AmountGive.Cmp(ledger.Units(1)) != 0 {
		t.Errorf("bad Trade legs: %+v", tr)
	}
	if tr.Timestamp != testTime.UnixMilli() {
		t.Errorf("trade timestamp = %d, want %d", tr.Timestamp, testTime.UnixMilli())
	}
}

func TestFillOrderTwice(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.FillOrder(user2, 1); err != nil {
		t.Fatalf("first fill: %v", err)
	}
	takerTokens := f.vault.Balance(token, user2)

	err := f.engine.FillOrder(user2, 1)
	if !errors.Is(err, book.ErrAlreadyFilled) {
		t.Errorf("err = %v, want ErrAlreadyFilled", err)
	}
	if f.vault.Balance(token, user2).Cmp(takerTokens) != 0 {
		t.Error("second fill attempt moved balances")
	}
}

func TestFillCancelledOrder(t *testing.T) {
	f := newFixture(t)

	if err := f.book.Cancel(user1, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	err := f.engine.FillOrder(user2, 1)
	if !errors.Is(err, book.ErrAlreadyCancelled) {
		t.Errorf("err = %v, want ErrAlreadyCancelled", err)
	}
	if f.vault.Balance(token, user1).Sign() != 0 {
		t.Error("fill of cancelled order moved balances")
	}
}

func TestCancelFilledOrder(t *testing.T) {
	f := newFixture(t)
	f.engine.FillOrder(user2, 1)

	err := f.book.Cancel(user1, 1)
	if !errors.Is(err, book.ErrAlreadyFilled) {
		t.Errorf("err = %v, want ErrAlreadyFilled", err)
	}
}

func TestFillUnknownOrder(t *testing.T) {
	f := newFixture(t)
	err := f.engine.FillOrder(user2, 9999)
	if !errors.Is(err, book.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFillAbortsWhenTakerUnderfunded(t *testing.T) {
	f := newFixture(t)

	// A second order too large for the taker's custody (needs 2.2
	// tokens with the fee; the taker holds 2).
	if _, err := f.book.Make(user1, token, ledger.Units(2), native, ledger.Units(1)); err != nil {
		t.Fatalf("make: %v", err)
	}

	err := f.engine.FillOrder(user2, 2)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if f.book.Filled(2) {
		t.Error("aborted fill marked order filled")
	}
	if f.vault.Balance(token, user2).Cmp(ledger.Units(2)) != 0 {
		t.Error("aborted fill moved taker balance")
	}
	if f.vault.Balance(token, feeAcct).Sign() != 0 {
		t.Error("aborted fill credited fee account")
	}
}

func TestFillAbortsWhenMakerUnderfunded(t *testing.T) {
	f := newFixture(t)

	// Maker posts a second order promising native they no longer have
	// after the first order consumes it.
	if _, err := f.book.Make(user1, token, ledger.Tenths(5), native, ledger.Units(1)); err != nil {
		t.Fatalf("make: %v", err)
	}
	if err := f.engine.FillOrder(user2, 1); err != nil {
		t.Fatalf("first fill: %v", err)
	}

	takerTokens := f.vault.Balance(token, user2)
	err := f.engine.FillOrder(user2, 2)
	if !errors.Is(err, ledger.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	// The taker-side debit must have been rolled into the abort too.
	if f.vault.Balance(token, user2).Cmp(takerTokens) != 0 {
		t.Error("aborted fill left partial taker debit")
	}
	if f.book.Filled(2) {
		t.Error("aborted fill marked order filled")
	}
}

func TestFillZeroAmountOrder(t *testing.T) {
	f := newFixture(t)

	// A 0/0 order settles cleanly regardless of funding, including for
	// parties the vault has never credited.
	stranger := common.HexToAddress("0x9900000000000000000000000000000000000000")
	if _, err := f.book.Make(stranger, token, big.NewInt(0), native, big.NewInt(0)); err != nil {
		t.Fatalf("make zero order: %v", err)
	}
	if err := f.engine.FillOrder(stranger, 2); err != nil {
		t.Fatalf("fill zero order: %v", err)
	}
	if !f.book.Filled(2) {
		t.Error("zero order not marked filled")
	}
	if f.vault.Balance(token, stranger).Sign() != 0 || f.vault.Balance(native, stranger).Sign() != 0 {
		t.Error("zero fill moved balances")
	}
}

func TestFeeTruncation(t *testing.T) {
	e := New(nil, nil, feeAcct, 10, nil, nil)

	// 15 / 100 * 10 = 1.5 → truncates to 1.
	if got := e.Fee(big.NewInt(15)); got.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("fee(15) = %s, want 1", got)
	}
	if got := e.Fee(big.NewInt(9)); got.Sign() != 0 {
		t.Errorf("fee(9) = %s, want 0", got)
	}
	if got := e.Fee(ledger.Units(1)); got.Cmp(ledger.Tenths(1)) != 0 {
		t.Errorf("fee(1 token) = %s, want 0.1 token", got)
	}
}

func TestEngineConfigImmutableAccessors(t *testing.T) {
	f := newFixture(t)
	if f.engine.FeeAccount() != feeAcct {
		t.Errorf("fee account = %s", f.engine.FeeAccount().Hex())
	}
	if f.engine.FeePercent() != 10 {
		t.Errorf("fee percent = %d", f.engine.FeePercent())
	}
}
