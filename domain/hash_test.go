package domain

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	require.NoError(t, err)
	b, err := NewSecret()
	require.NoError(t, err)

	assert.Len(t, a, SecretSize)
	assert.NotEqual(t, a, b)
}

func TestDigestAlgorithms(t *testing.T) {
	secret := Secret("the quick brown fox")

	sha, err := HashSHA256.Digest(secret)
	require.NoError(t, err)
	assert.Equal(t, SecretHash(sha256.Sum256(secret)), sha)

	keccak, err := HashKeccak256.Digest(secret)
	require.NoError(t, err)
	assert.NotEqual(t, sha, keccak, "distinct primitives, distinct digests")

	_, err = HashAlgo("blake3").Digest(secret)
	assert.ErrorIs(t, err, ErrUnknownHashAlgo)
}

func TestSecretHashEqual(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)
	h1, err := HashSHA256.Digest(secret)
	require.NoError(t, err)
	h2, err := HashSHA256.Digest(secret)
	require.NoError(t, err)

	assert.True(t, h1.Equal(h2))

	h2[0] ^= 0xff
	assert.False(t, h1.Equal(h2))
}

func TestDeriveLockID(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)
	hash, err := HashSHA256.Digest(secret)
	require.NoError(t, err)

	id1 := DeriveLockID(hash)
	id2 := DeriveLockID(hash)
	assert.Equal(t, id1, id2, "derivation is deterministic")

	// Domain separation: the id is not the raw digest.
	assert.NotEqual(t, LockID(hash), id1)

	other, err := NewSecret()
	require.NoError(t, err)
	otherHash, err := HashSHA256.Digest(other)
	require.NoError(t, err)
	assert.NotEqual(t, id1, DeriveLockID(otherHash))
}

func TestParseRoundTrips(t *testing.T) {
	secret, err := NewSecret()
	require.NoError(t, err)

	parsed, err := ParseSecret(secret.Hex())
	require.NoError(t, err)
	assert.Equal(t, secret, parsed)

	_, err = ParseSecret("not hex")
	assert.ErrorIs(t, err, ErrInvalidSecret)

	hash, err := HashSHA256.Digest(secret)
	require.NoError(t, err)
	parsedHash, err := ParseSecretHash(hash.Hex())
	require.NoError(t, err)
	assert.Equal(t, hash, parsedHash)

	_, err = ParseSecretHash("abcd")
	assert.ErrorIs(t, err, ErrMalformedID)

	id := DeriveLockID(hash)
	parsedID, err := ParseLockID(id.Hex())
	require.NoError(t, err)
	assert.Equal(t, id, parsedID)

	_, err = ParseLockID("zz")
	assert.ErrorIs(t, err, ErrMalformedID)
}
