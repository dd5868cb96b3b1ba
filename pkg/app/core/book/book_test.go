package book

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/exchangecity/exchanged/pkg/app/core/ledger"
	"github.com/exchangecity/exchanged/pkg/events"
	"github.com/exchangecity/exchanged/pkg/util"
)

var (
	maker = common.HexToAddress("0x1100000000000000000000000000000000000000")
	other = common.HexToAddress("0x2200000000000000000000000000000000000000")
	token = common.HexToAddress("0x7700000000000000000000000000000000000000")
)

var native = common.Address{}

var testTime = time.UnixMilli(1_700_000_000_000)

func newTestBook() (*Book, *events.Log) {
	log := events.NewLog(nil, nil, nil)
	return New(util.FixedClock{T: testTime}, log), log
}

func TestMakeOrder(t *testing.T) {
	b, log := newTestBook()

	o, err := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))
	if err != nil {
		t.Fatalf("make: %v", err)
	}

	if b.Count() != 1 {
		t.Errorf("count = %d, want 1", b.Count())
	}
	if o.ID != 1 {
		t.Errorf("id = %d, want 1", o.ID)
	}
	if o.Maker != maker {
		t.Errorf("maker = %s, want %s", o.Maker.Hex(), maker.Hex())
	}
	if o.TokenGet != token || o.AmountGet.Cmp(ledger.Units(1)) != 0 {
		t.Errorf("get side wrong: %s %s", o.TokenGet.Hex(), o.AmountGet)
	}
	if o.TokenGive != native || o.AmountGive.Cmp(ledger.Units(1)) != 0 {
		t.Errorf("give side wrong: %s %s", o.TokenGive.Hex(), o.AmountGive)
	}
	if o.Timestamp != testTime.UnixMilli() {
		t.Errorf("timestamp = %d, want %d", o.Timestamp, testTime.UnixMilli())
	}

	recs := log.Records(0, 0)
	if len(recs) != 1 || recs[0].Kind != events.KindOrder || recs[0].Order.ID != 1 {
		t.Errorf("expected one Order record, got %+v", recs)
	}
}

func TestMakeOrderDoesNotCheckFunding(t *testing.T) {
	b, _ := newTestBook()
	// maker has deposited nothing anywhere; creation must still succeed.
	if _, err := b.Make(maker, token, ledger.Units(1_000_000), native, ledger.Units(1_000_000)); err != nil {
		t.Fatalf("make without funding: %v", err)
	}
}

func TestMakeZeroAmountOrder(t *testing.T) {
	b, _ := newTestBook()

	// Amounts are unsigned; zero is a valid order size.
	o, err := b.Make(maker, token, big.NewInt(0), native, big.NewInt(0))
	if err != nil {
		t.Fatalf("make zero order: %v", err)
	}
	if o.AmountGet.Sign() != 0 || o.AmountGive.Sign() != 0 {
		t.Errorf("amounts = %s/%s, want 0/0", o.AmountGet, o.AmountGive)
	}
}

func TestSequentialIDs(t *testing.T) {
	b, _ := newTestBook()
	for want := uint64(1); want <= 5; want++ {
		o, err := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))
		if err != nil {
			t.Fatalf("make %d: %v", want, err)
		}
		if o.ID != want {
			t.Errorf("id = %d, want %d", o.ID, want)
		}
		if b.Count() != want {
			t.Errorf("count = %d, want %d", b.Count(), want)
		}
	}
}

func TestCancelOrder(t *testing.T) {
	b, log := newTestBook()
	o, _ := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))

	if err := b.Cancel(maker, o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !b.Cancelled(o.ID) {
		t.Error("order not marked cancelled")
	}
	if b.Filled(o.ID) {
		t.Error("cancel set filled")
	}

	recs := log.Records(0, 0)
	last := recs[len(recs)-1]
	if last.Kind != events.KindCancel || last.Cancel.ID != o.ID || last.Cancel.Timestamp != o.Timestamp {
		t.Errorf("bad Cancel record: %+v", last)
	}
}

func TestCancelFailures(t *testing.T) {
	b, _ := newTestBook()
	o, _ := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))

	if err := b.Cancel(maker, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := b.Cancel(other, o.ID); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
	if b.Cancelled(o.ID) {
		t.Error("failed cancels changed state")
	}

	// Second cancel by the maker is rejected.
	b.Cancel(maker, o.ID)
	if err := b.Cancel(maker, o.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("err = %v, want ErrAlreadyCancelled", err)
	}
}

func TestFillLifecycle(t *testing.T) {
	b, _ := newTestBook()
	o, _ := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))

	settled := 0
	err := b.Fill(o.ID, func(got Order) error {
		settled++
		if got.ID != o.ID || got.Maker != maker {
			t.Errorf("settle saw wrong order: %+v", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if settled != 1 || !b.Filled(o.ID) {
		t.Error("fill did not settle and mark exactly once")
	}

	// Filled order cannot be filled or cancelled.
	if err := b.Fill(o.ID, func(Order) error { return nil }); !errors.Is(err, ErrAlreadyFilled) {
		t.Errorf("err = %v, want ErrAlreadyFilled", err)
	}
	if err := b.Cancel(maker, o.ID); !errors.Is(err, ErrAlreadyFilled) {
		t.Errorf("cancel filled: err = %v, want ErrAlreadyFilled", err)
	}
}

func TestFillCancelledOrder(t *testing.T) {
	b, _ := newTestBook()
	o, _ := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))
	b.Cancel(maker, o.ID)

	err := b.Fill(o.ID, func(Order) error {
		t.Error("settle ran for a cancelled order")
		return nil
	})
	if !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("err = %v, want ErrAlreadyCancelled", err)
	}
	if b.Filled(o.ID) {
		t.Error("cancelled order marked filled")
	}
}

func TestFillSettleFailureLeavesOrderOpen(t *testing.T) {
	b, _ := newTestBook()
	o, _ := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))

	sentinel := errors.New("settlement refused")
	if err := b.Fill(o.ID, func(Order) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want settlement error", err)
	}
	if b.Filled(o.ID) {
		t.Error("failed settlement marked order filled")
	}

	// The order is still fillable.
	if err := b.Fill(o.ID, func(Order) error { return nil }); err != nil {
		t.Errorf("retry fill: %v", err)
	}
}

func TestFillUnknownOrder(t *testing.T) {
	b, _ := newTestBook()
	err := b.Fill(9999, func(Order) error { return nil })
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestOpenListsOnlyLiveOrders(t *testing.T) {
	b, _ := newTestBook()
	o1, _ := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))
	o2, _ := b.Make(maker, token, ledger.Units(2), native, ledger.Units(2))
	o3, _ := b.Make(maker, token, ledger.Units(3), native, ledger.Units(3))

	b.Cancel(maker, o1.ID)
	b.Fill(o2.ID, func(Order) error { return nil })

	open := b.Open()
	if len(open) != 1 || open[0].ID != o3.ID {
		t.Errorf("open = %+v, want only order %d", open, o3.ID)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	b, _ := newTestBook()
	o, _ := b.Make(maker, token, ledger.Units(1), native, ledger.Units(1))

	got, err := b.Get(o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.AmountGet.SetInt64(0)

	again, _ := b.Get(o.ID)
	if again.AmountGet.Cmp(ledger.Units(1)) != 0 {
		t.Error("Get leaked internal order state")
	}
}
