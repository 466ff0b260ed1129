package domain

import "errors"

// Lock state machine errors. Each failed precondition maps to exactly one of
// these so an external monitor can tell authorization, timing, secret and
// terminal-state failures apart. None of them is retriable as-is.
var (
	// Validation.
	ErrInvalidAmount = errors.New("htlc: amount must be positive")
	ErrDuplicateLock = errors.New("htlc: lock id already exists")
	ErrMalformedID   = errors.New("htlc: malformed identifier")
	ErrLockNotFound  = errors.New("htlc: lock not found")

	// Authorization.
	ErrNotRecipient  = errors.New("htlc: caller is not the recipient")
	ErrNotAuthorized = errors.New("htlc: caller not authorized to refund")

	// Temporal.
	ErrTimelockExpired    = errors.New("htlc: timelock expired, claim window closed")
	ErrTimelockNotExpired = errors.New("htlc: timelock not expired, refund window not open")

	// Cryptographic.
	ErrInvalidSecret = errors.New("htlc: secret does not match hash lock")

	// Terminal state.
	ErrAlreadyTerminal = errors.New("htlc: lock already claimed or refunded")
)

// Orchestration errors.
var (
	ErrUnknownHashAlgo    = errors.New("swap: unknown hash algorithm")
	ErrHashAlgoMismatch   = errors.New("swap: ledgers disagree on secret hash algorithm")
	ErrTimelockOrdering   = errors.New("swap: responder timelock must be shorter than initiator timelock")
	ErrConfirmationFailed = errors.New("swap: confirmation wait exhausted")
)
