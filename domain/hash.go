package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// SecretSize is the byte length of secrets generated by the orchestrator.
// Ledgers that enforce a secret length expect exactly this.
const SecretSize = 32

// Secret is the preimage whose digest is published as the hash lock.
// Its disclosure on one ledger is what unlocks the other.
type Secret []byte

// NewSecret draws a uniformly random SecretSize-byte secret.
func NewSecret() (Secret, error) {
	s := make(Secret, SecretSize)
	if _, err := rand.Read(s); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return s, nil
}

// ParseSecret decodes a hex-encoded secret.
func ParseSecret(s string) (Secret, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidSecret
	}
	return Secret(b), nil
}

func (s Secret) Hex() string { return hex.EncodeToString(s) }

// SecretHash is the fixed-length digest binding both locks of a swap.
type SecretHash [32]byte

func (h SecretHash) Hex() string { return hex.EncodeToString(h[:]) }

// ParseSecretHash decodes a 64-char hex digest.
func ParseSecretHash(s string) (SecretHash, error) {
	var h SecretHash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, ErrMalformedID
	}
	copy(h[:], b)
	return h, nil
}

// Equal is a constant-time digest comparison.
func (h SecretHash) Equal(other SecretHash) bool {
	return subtle.ConstantTimeCompare(h[:], other[:]) == 1
}

// HashAlgo identifies the digest a ledger applies to the secret.
// The two ledgers of one swap must agree on this; the orchestrator
// validates it up front rather than letting a swap fail silently.
type HashAlgo string

const (
	HashSHA256    HashAlgo = "sha256"
	HashKeccak256 HashAlgo = "keccak256"
)

// Digest hashes a secret under the algorithm.
func (a HashAlgo) Digest(secret Secret) (SecretHash, error) {
	var h SecretHash
	switch a {
	case HashSHA256:
		h = sha256.Sum256(secret)
	case HashKeccak256:
		d := sha3.NewLegacyKeccak256()
		d.Write(secret)
		copy(h[:], d.Sum(nil))
	default:
		return h, fmt.Errorf("%w: %q", ErrUnknownHashAlgo, a)
	}
	return h, nil
}

// lockIDPrefix domain-separates lock identifiers from raw secret hashes.
var lockIDPrefix = []byte("enderswap/lock/v1")

// DeriveLockID maps a secret hash to the lock identifier used on both
// ledgers. Deterministic derivation is what lets two ledgers with no shared
// ordering agree on the identity of one logical swap.
func DeriveLockID(h SecretHash) LockID {
	d := sha256.New()
	d.Write(lockIDPrefix)
	d.Write(h[:])
	var id LockID
	copy(id[:], d.Sum(nil))
	return id
}
