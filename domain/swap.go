package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SwapState tracks the orchestrator's progress through one atomic swap.
// States are named after the lock being acted on: the secret is revealed by
// claiming the responder's lock (side B) first, then side A is claimed with
// the now-public secret.
type SwapState string

const (
	SwapStateInit          SwapState = "INIT"
	SwapStateSideALocking  SwapState = "SIDE_A_LOCKING"
	SwapStateSideALocked   SwapState = "SIDE_A_LOCKED"
	SwapStateSideBLocking  SwapState = "SIDE_B_LOCKING"
	SwapStateSideBLocked   SwapState = "SIDE_B_LOCKED"
	SwapStateSideBClaiming SwapState = "SIDE_B_CLAIMING" // secret reveal point
	SwapStateSideBClaimed  SwapState = "SIDE_B_CLAIMED"
	SwapStateSideAClaiming SwapState = "SIDE_A_CLAIMING"
	SwapStateCompleted     SwapState = "COMPLETED"
	SwapStateRefundPending SwapState = "REFUND_PENDING"
	SwapStateRefunded      SwapState = "REFUNDED"
	SwapStateAbandoned     SwapState = "ABANDONED" // nothing locked, nothing at risk
)

// Terminal reports whether the orchestrator is done with this swap.
func (s SwapState) Terminal() bool {
	switch s {
	case SwapStateCompleted, SwapStateRefunded, SwapStateAbandoned:
		return true
	}
	return false
}

// SwapSide is one half of a swap: what gets locked on one ledger and for whom.
type SwapSide struct {
	Ledger      string // adapter name, for logs and lookups
	Recipient   string
	RefundParty string // empty = depositor refunds to itself
	Amount      decimal.Decimal
	BaseAmount  uint64 // Amount scaled by the ledger's denomination
	Deadline    time.Time
}

// Swap is the orchestrator-level entity spanning two locks on two ledgers.
// It owns the coordination state only; funds are owned by whichever lock
// currently holds them.
type Swap struct {
	ID         string
	State      SwapState
	SecretHash SecretHash
	LockID     LockID

	// The initiator's side gets the long timelock, the responder's the
	// short one. LongTimelock > ShortTimelock is validated before any
	// funds move.
	LongTimelock  time.Duration
	ShortTimelock time.Duration

	SideA SwapSide // initiator locks here
	SideB SwapSide // responder locks here

	CreatedAt time.Time
	UpdatedAt time.Time
}
