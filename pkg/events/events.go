package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Kind identifies the payload carried by a Record.
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindApproval Kind = "approval"
	KindDeposit  Kind = "deposit"
	KindWithdraw Kind = "withdraw"
	KindOrder    Kind = "order"
	KindCancel   Kind = "cancel"
	KindTrade    Kind = "trade"
)

// Transfer records a ledger balance move between two holders.
type Transfer struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
}

// Approval records an owner granting a spender an allowance.
type Approval struct {
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Value   *big.Int       `json:"value"`
}

// Deposit records an asset entering custody. Balance is the user's
// custodial balance of the asset after the deposit.
type Deposit struct {
	Asset   common.Address `json:"asset"`
	User    common.Address `json:"user"`
	Amount  *big.Int       `json:"amount"`
	Balance *big.Int       `json:"balance"`
}

// Withdraw records an asset leaving custody. Balance is the user's
// custodial balance of the asset after the withdrawal.
type Withdraw struct {
	Asset   common.Address `json:"asset"`
	User    common.Address `json:"user"`
	Amount  *big.Int       `json:"amount"`
	Balance *big.Int       `json:"balance"`
}

// Order records a newly created order.
type Order struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// Cancel records an order cancelled by its maker. Timestamp is the
// order's creation time, matching the order record it terminates.
type Cancel struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
}

// Trade records a settled fill: the order's fields plus the taker and
// the fill time.
type Trade struct {
	ID         uint64         `json:"id"`
	Maker      common.Address `json:"maker"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  *big.Int       `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive *big.Int       `json:"amountGive"`
	Taker      common.Address `json:"taker"`
	Timestamp  int64          `json:"timestamp"`
}

// Record is one immutable entry in the audit log. Seq is assigned by
// the log and strictly increases from 1. Exactly one payload pointer
// is non-nil, selected by Kind.
type Record struct {
	Seq  uint64 `json:"seq"`
	Kind Kind   `json:"kind"`
	Time int64  `json:"time"` // unix milliseconds at append

	Transfer *Transfer `json:"transfer,omitempty"`
	Approval *Approval `json:"approval,omitempty"`
	Deposit  *Deposit  `json:"deposit,omitempty"`
	Withdraw *Withdraw `json:"withdraw,omitempty"`
	Order    *Order    `json:"order,omitempty"`
	Cancel   *Cancel   `json:"cancel,omitempty"`
	Trade    *Trade    `json:"trade,omitempty"`
}
