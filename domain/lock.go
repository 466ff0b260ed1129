// Package domain holds the types shared by every layer of enderswap: locks
// and their lifecycle, swaps and their coordination states, secrets and hash
// locks, denominations, and the error taxonomy.
package domain

import (
	"encoding/hex"
	"time"
)

// LockStatus is the lifecycle state of a single ledger-local lock.
// It is monotonic: once a lock leaves LOCKED it never moves again.
type LockStatus string

const (
	LockStatusLocked   LockStatus = "LOCKED"
	LockStatusClaimed  LockStatus = "CLAIMED"
	LockStatusRefunded LockStatus = "REFUNDED"
)

// Terminal reports whether no further transition is possible.
func (s LockStatus) Terminal() bool {
	return s == LockStatusClaimed || s == LockStatusRefunded
}

// LockID identifies one lock. Both ledgers in a swap derive the same ID from
// the secret hash (see DeriveLockID), so no side channel is needed to agree
// on "this is the same logical lock". A ledger may keep its own native object
// identity in addition.
type LockID [32]byte

func (id LockID) Hex() string { return hex.EncodeToString(id[:]) }

// ParseLockID decodes a 64-char hex string into a LockID.
func ParseLockID(s string) (LockID, error) {
	var id LockID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, ErrMalformedID
	}
	if len(b) != len(id) {
		return id, ErrMalformedID
	}
	copy(id[:], b)
	return id, nil
}

// Lock represents one ledger-local escrow instance.
// Addresses are opaque strings in whatever format the hosting ledger uses.
type Lock struct {
	ID          LockID
	Depositor   string // funded the lock, entitled to refund by default
	Recipient   string // entitled to claim by revealing the secret
	RefundParty string // receives the refund; may differ from Depositor
	Amount      uint64 // base units of the ledger's native asset, immutable
	SecretHash  SecretHash
	SecretLen   int // expected secret byte length; 0 = not enforced
	Deadline    time.Time
	Status      LockStatus
	CreatedAt   time.Time
}

// Claimable reports whether a claim at time now could still succeed,
// ignoring authorization and the secret itself.
func (l *Lock) Claimable(now time.Time) bool {
	return l.Status == LockStatusLocked && now.Before(l.Deadline)
}

// Refundable reports whether a refund at time now could still succeed,
// ignoring authorization. Claimable and Refundable windows are disjoint.
func (l *Lock) Refundable(now time.Time) bool {
	return l.Status == LockStatusLocked && !now.Before(l.Deadline)
}
