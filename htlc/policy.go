// Package htlc implements the hashed-timelock lock state machine that every
// participating ledger replicates: creation, claim and refund of a single
// escrow, with the hash, timelock and exclusivity invariants enforced
// locally. Who may call claim and refund varies between observed ledgers, so
// authorization is policy, not part of the machine itself.
package htlc

// RefundAuth selects which callers may refund an expired lock.
type RefundAuth int

const (
	// RefundDepositorOnly is the strict variant: only the depositor.
	RefundDepositorOnly RefundAuth = iota
	// RefundAnyParticipant is the permissive variant: depositor,
	// recipient or the designated refund party.
	RefundAnyParticipant
)

// Policy is the per-ledger authorization configuration.
type Policy struct {
	// OpenClaim allows any caller to submit the secret. Funds still go
	// to the fixed recipient regardless of caller. When false, only the
	// recipient may claim.
	OpenClaim bool

	RefundAuth RefundAuth
}

// StrictPolicy matches the EVM-style ledger: recipient-only claim,
// depositor-only refund.
func StrictPolicy() Policy {
	return Policy{OpenClaim: false, RefundAuth: RefundDepositorOnly}
}

// PermissivePolicy matches the object-model ledger: anyone with the secret
// may claim, any participant may refund.
func PermissivePolicy() Policy {
	return Policy{OpenClaim: true, RefundAuth: RefundAnyParticipant}
}

func (p Policy) mayClaim(caller, recipient string) bool {
	return p.OpenClaim || caller == recipient
}

func (p Policy) mayRefund(caller, depositor, recipient, refundParty string) bool {
	if caller == depositor {
		return true
	}
	if p.RefundAuth == RefundAnyParticipant {
		return caller == recipient || caller == refundParty
	}
	return false
}
