// Package swap contains the ledger-agnostic port for HTLC operations and the
// orchestrator that sequences two lock lifecycles into one atomic swap.
// The orchestrator talks ONLY to the Ledger interface — never to geth, LND
// or any chain client directly.
package swap

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arcceus/enderswap/domain"
)

// Ledger is the capability interface each supported ledger must implement.
// An instance is bound to one signing identity on one ledger: key material
// lives inside the adapter, callers only invoke operations.
type Ledger interface {
	// Name identifies the ledger instance in logs and swap records.
	Name() string

	// HashAlgo reports the digest this ledger applies to secrets. Both
	// ledgers of one swap must agree; the orchestrator validates this
	// up front.
	HashAlgo() domain.HashAlgo

	// Denomination reports how the ledger counts its native asset.
	Denomination() domain.Denomination

	// Signer returns the address the adapter signs with. Lock claims and
	// refunds submitted through this adapter are attributed to it.
	Signer() string

	// CreateLock escrows funds behind the secret hash. The returned
	// handle tracks the submission until WaitForConfirmation resolves it.
	CreateLock(ctx context.Context, req CreateLockRequest) (*Handle, error)

	// Claim reveals the secret to transfer the locked amount to the
	// lock's recipient. Once submitted the secret is public.
	Claim(ctx context.Context, id domain.LockID, secret domain.Secret) (*Handle, error)

	// Refund returns an expired lock's amount to its refund party.
	Refund(ctx context.Context, id domain.LockID) (*Handle, error)

	// GetLock is a read-only query, callable by any party.
	// Returns domain.ErrLockNotFound for unknown ids.
	GetLock(ctx context.Context, id domain.LockID) (*domain.Lock, error)

	// SubscribeEvents streams lock lifecycle events matching the filter.
	// The stream is infinite and ends only with context cancellation or a
	// transport error on the error channel; it does not resume from an
	// arbitrary offset.
	SubscribeEvents(ctx context.Context, filter EventFilter) (<-chan Event, <-chan error, error)

	// WaitForConfirmation blocks until the submission behind the handle
	// reaches the policy's finality requirement, or fails.
	WaitForConfirmation(ctx context.Context, h *Handle, policy ConfirmationPolicy) error
}

// CreateLockRequest carries the lock parameters in ledger-agnostic form.
// Amount is human-denominated; the adapter scales it by its denomination.
type CreateLockRequest struct {
	LockID      domain.LockID
	Recipient   string
	RefundParty string // empty = adapter's own signer
	Amount      decimal.Decimal
	SecretHash  domain.SecretHash
	SecretLen   int
	Duration    time.Duration
}

// Handle is an opaque reference to a submitted ledger operation.
type Handle struct {
	ID        string        // driver-internal handle id
	TxID      string        // ledger transaction id, if already known
	LockID    domain.LockID // lock the operation concerns
	Submitted time.Time
}

// EventType classifies lock lifecycle events.
type EventType string

const (
	EventLockCreated  EventType = "CREATED"
	EventLockClaimed  EventType = "CLAIMED"
	EventLockRefunded EventType = "REFUNDED"
)

// Event is one lock state transition observed on a ledger. Claimed events
// carry the revealed secret — that emission is what lets the counterparty
// complete its half of the swap.
type Event struct {
	Type   EventType
	LockID domain.LockID
	Secret domain.Secret // set on CLAIMED only
	Amount uint64
	At     time.Time
}

// EventFilter restricts a subscription. A nil LockID matches every lock.
type EventFilter struct {
	LockID *domain.LockID
}

// Matches reports whether the event passes the filter.
func (f EventFilter) Matches(e Event) bool {
	return f.LockID == nil || *f.LockID == e.LockID
}

// ConfirmationPolicy bounds a finality wait. Fixed sleeps are deliberately
// absent from the orchestration flow: every suspension is a confirmation
// wait under one of these.
type ConfirmationPolicy struct {
	MinConfirmations int
	Timeout          time.Duration
	PollInterval     time.Duration
}

// DefaultConfirmationPolicy waits for a single confirmation for up to ten
// minutes, polling every two seconds.
func DefaultConfirmationPolicy() ConfirmationPolicy {
	return ConfirmationPolicy{
		MinConfirmations: 1,
		Timeout:          10 * time.Minute,
		PollInterval:     2 * time.Second,
	}
}

// RetryPolicy bounds resubmission of transport-failed calls. Domain errors
// (bad secret, expired timelock, terminal lock…) are never retried.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy retries twice with a five second backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Backoff: 5 * time.Second}
}
