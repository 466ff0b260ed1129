package htlc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcceus/enderswap/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

const (
	alice = "alice"
	bob   = "bob"
	carol = "carol"
)

func newTestBook(t *testing.T, policy Policy) (*Book, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	book := NewBook(domain.HashSHA256, policy, clk.Now)
	book.Fund(alice, 1_000_000)
	return book, clk
}

func newSecretAndHash(t *testing.T) (domain.Secret, domain.SecretHash) {
	t.Helper()
	secret, err := domain.NewSecret()
	require.NoError(t, err)
	hash, err := domain.HashSHA256.Digest(secret)
	require.NoError(t, err)
	return secret, hash
}

func lockRequest(hash domain.SecretHash) CreateRequest {
	return CreateRequest{
		ID:         domain.DeriveLockID(hash),
		Recipient:  bob,
		Amount:     100_000,
		SecretHash: hash,
		SecretLen:  domain.SecretSize,
		Duration:   24 * time.Hour,
	}
}

func TestCreateValidation(t *testing.T) {
	book, _ := newTestBook(t, StrictPolicy())
	_, hash := newSecretAndHash(t)

	t.Run("zero amount", func(t *testing.T) {
		req := lockRequest(hash)
		req.Amount = 0
		_, err := book.Create(alice, req)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("duplicate id", func(t *testing.T) {
		req := lockRequest(hash)
		_, err := book.Create(alice, req)
		require.NoError(t, err)
		_, err = book.Create(alice, req)
		assert.ErrorIs(t, err, domain.ErrDuplicateLock)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		_, hash2 := newSecretAndHash(t)
		req := lockRequest(hash2)
		req.Amount = 10_000_000
		_, err := book.Create(alice, req)
		assert.Error(t, err)
	})
}

func TestCreateEscrowsFunds(t *testing.T) {
	book, _ := newTestBook(t, StrictPolicy())
	_, hash := newSecretAndHash(t)

	lock, err := book.Create(alice, lockRequest(hash))
	require.NoError(t, err)

	assert.Equal(t, domain.LockStatusLocked, lock.Status)
	assert.Equal(t, alice, lock.Depositor)
	assert.Equal(t, alice, lock.RefundParty, "refund party defaults to depositor")
	assert.Equal(t, uint64(900_000), book.Balance(alice))
	assert.Equal(t, uint64(0), book.Balance(bob))
}

func TestClaimHappyPath(t *testing.T) {
	book, _ := newTestBook(t, StrictPolicy())
	secret, hash := newSecretAndHash(t)
	req := lockRequest(hash)
	_, err := book.Create(alice, req)
	require.NoError(t, err)

	lock, err := book.Claim(bob, req.ID, secret)
	require.NoError(t, err)

	assert.Equal(t, domain.LockStatusClaimed, lock.Status)
	assert.Equal(t, uint64(100_000), book.Balance(bob))
	assert.Equal(t, uint64(900_000), book.Balance(alice))
}

func TestClaimHashBinding(t *testing.T) {
	book, _ := newTestBook(t, StrictPolicy())
	_, hash := newSecretAndHash(t)
	req := lockRequest(hash)
	_, err := book.Create(alice, req)
	require.NoError(t, err)

	wrongSecret, _ := newSecretAndHash(t)
	_, err = book.Claim(bob, req.ID, wrongSecret)
	assert.ErrorIs(t, err, domain.ErrInvalidSecret)

	// The failed attempt consumes nothing: the right secret still works.
	lock, err := book.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusLocked, lock.Status)
	assert.Equal(t, uint64(0), book.Balance(bob))
}

func TestClaimSecretLength(t *testing.T) {
	book, _ := newTestBook(t, StrictPolicy())
	secret, hash := newSecretAndHash(t)
	req := lockRequest(hash)
	_, err := book.Create(alice, req)
	require.NoError(t, err)

	_, err = book.Claim(bob, req.ID, secret[:16])
	assert.ErrorIs(t, err, domain.ErrInvalidSecret)

	// Length check disabled when SecretLen is zero.
	_, hash2 := newSecretAndHash(t)
	req2 := lockRequest(hash2)
	req2.SecretLen = 0
	short := domain.Secret("short")
	d, err := domain.HashSHA256.Digest(short)
	require.NoError(t, err)
	req2.SecretHash = d
	req2.ID = domain.DeriveLockID(d)
	_, err = book.Create(alice, req2)
	require.NoError(t, err)
	_, err = book.Claim(bob, req2.ID, short)
	assert.NoError(t, err)
}

func TestTemporalGating(t *testing.T) {
	book, clk := newTestBook(t, StrictPolicy())
	secret, hash := newSecretAndHash(t)
	req := lockRequest(hash)
	_, err := book.Create(alice, req)
	require.NoError(t, err)

	// Refund before the deadline is rejected.
	_, err = book.Refund(alice, req.ID)
	assert.ErrorIs(t, err, domain.ErrTimelockNotExpired)

	// Claim after the deadline is rejected, and the lock becomes
	// refund-eligible instead.
	clk.Advance(req.Duration)
	_, err = book.Claim(bob, req.ID, secret)
	assert.ErrorIs(t, err, domain.ErrTimelockExpired)

	lock, err := book.Refund(alice, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusRefunded, lock.Status)
	assert.Equal(t, uint64(1_000_000), book.Balance(alice), "full amount returned")
}

func TestExclusivity(t *testing.T) {
	book, clk := newTestBook(t, StrictPolicy())
	secret, hash := newSecretAndHash(t)
	req := lockRequest(hash)
	_, err := book.Create(alice, req)
	require.NoError(t, err)

	_, err = book.Claim(bob, req.ID, secret)
	require.NoError(t, err)

	// Every later transition attempt fails, even legitimate-looking ones.
	_, err = book.Claim(bob, req.ID, secret)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	clk.Advance(48 * time.Hour)
	_, err = book.Refund(alice, req.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyTerminal)

	// No double credit happened.
	assert.Equal(t, uint64(100_000), book.Balance(bob))
}

func TestClaimAuthorization(t *testing.T) {
	t.Run("strict rejects non-recipient", func(t *testing.T) {
		book, _ := newTestBook(t, StrictPolicy())
		secret, hash := newSecretAndHash(t)
		req := lockRequest(hash)
		_, err := book.Create(alice, req)
		require.NoError(t, err)

		_, err = book.Claim(carol, req.ID, secret)
		assert.ErrorIs(t, err, domain.ErrNotRecipient)
	})

	t.Run("open claim routes funds to recipient regardless of caller", func(t *testing.T) {
		book, _ := newTestBook(t, PermissivePolicy())
		secret, hash := newSecretAndHash(t)
		req := lockRequest(hash)
		_, err := book.Create(alice, req)
		require.NoError(t, err)

		_, err = book.Claim(carol, req.ID, secret)
		require.NoError(t, err)
		assert.Equal(t, uint64(100_000), book.Balance(bob))
		assert.Equal(t, uint64(0), book.Balance(carol))
	})
}

func TestRefundAuthorization(t *testing.T) {
	t.Run("strict allows depositor only", func(t *testing.T) {
		book, clk := newTestBook(t, StrictPolicy())
		_, hash := newSecretAndHash(t)
		req := lockRequest(hash)
		_, err := book.Create(alice, req)
		require.NoError(t, err)
		clk.Advance(25 * time.Hour)

		_, err = book.Refund(bob, req.ID)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)
		_, err = book.Refund(alice, req.ID)
		assert.NoError(t, err)
	})

	t.Run("permissive allows any participant", func(t *testing.T) {
		book, clk := newTestBook(t, PermissivePolicy())
		_, hash := newSecretAndHash(t)
		req := lockRequest(hash)
		req.RefundParty = carol
		_, err := book.Create(alice, req)
		require.NoError(t, err)
		clk.Advance(25 * time.Hour)

		_, err = book.Refund("mallory", req.ID)
		assert.ErrorIs(t, err, domain.ErrNotAuthorized)

		// Recipient may trigger, funds still go to the refund party.
		_, err = book.Refund(bob, req.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(100_000), book.Balance(carol))
		assert.Equal(t, uint64(0), book.Balance(bob))
	})
}

func TestQuery(t *testing.T) {
	book, _ := newTestBook(t, StrictPolicy())
	_, hash := newSecretAndHash(t)
	req := lockRequest(hash)
	_, err := book.Create(alice, req)
	require.NoError(t, err)

	lock, err := book.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, lock.ID)

	// Mutating the snapshot must not touch book state.
	lock.Status = domain.LockStatusClaimed
	again, err := book.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockStatusLocked, again.Status)

	_, err = book.Get(domain.LockID{0xde, 0xad})
	assert.ErrorIs(t, err, domain.ErrLockNotFound)
}

func TestConcurrentClaimRefundRace(t *testing.T) {
	book, clk := newTestBook(t, PermissivePolicy())
	secret, hash := newSecretAndHash(t)
	req := lockRequest(hash)
	_, err := book.Create(alice, req)
	require.NoError(t, err)

	// At exactly the deadline boundary only one of claim/refund can win;
	// serialization guarantees the loser sees a clean error either way.
	clk.Advance(req.Duration)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := book.Claim(bob, req.ID, secret)
		results <- err
	}()
	go func() {
		defer wg.Done()
		_, err := book.Refund(alice, req.ID)
		results <- err
	}()
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one transition wins")
	assert.Equal(t, uint64(1_000_000), book.Balance(alice)+book.Balance(bob),
		"amount conserved across the race")
}
