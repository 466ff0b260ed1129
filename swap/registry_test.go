package swap_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcceus/enderswap/swap"
)

func proposalParams(t *testing.T) swap.SwapParams {
	t.Helper()
	return swap.SwapParams{
		AmountA:       newDec(t, "1.5"),
		AmountB:       newDec(t, "0.75"),
		RecipientOnA:  bob,
		RecipientOnB:  alice,
		LongTimelock:  48 * time.Hour,
		ShortTimelock: 24 * time.Hour,
	}
}

func TestRegistryPostValidation(t *testing.T) {
	r := swap.NewRegistry()

	params := proposalParams(t)
	params.AmountA = newDec(t, "0")
	_, err := r.Post(alice, params)
	assert.Error(t, err)

	params = proposalParams(t)
	params.LongTimelock = params.ShortTimelock
	_, err = r.Post(alice, params)
	assert.Error(t, err)
}

func TestRegistryTakeIsSingleUse(t *testing.T) {
	r := swap.NewRegistry()
	id, err := r.Post(alice, proposalParams(t))
	require.NoError(t, err)

	open := r.Open()
	require.Len(t, open, 1)
	assert.Equal(t, id, open[0].ID)

	taken, err := r.Take(id, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, taken.TakenBy)
	assert.False(t, taken.TakenAt.IsZero())

	_, err = r.Take(id, "carol")
	assert.Error(t, err, "second take rejected")

	got, err := r.Get(id)
	require.NoError(t, err)
	assert.Equal(t, bob, got.TakenBy, "first taker sticks")
	assert.Empty(t, r.Open())
}

func TestRegistryUnknownProposal(t *testing.T) {
	r := swap.NewRegistry()
	_, err := r.Get("nope")
	assert.Error(t, err)
	_, err = r.Take("nope", bob)
	assert.Error(t, err)
}

func TestRegistryConcurrentTake(t *testing.T) {
	r := swap.NewRegistry()
	id, err := r.Post(alice, proposalParams(t))
	require.NoError(t, err)

	const takers = 8
	var wg sync.WaitGroup
	errs := make(chan error, takers)
	wg.Add(takers)
	for i := 0; i < takers; i++ {
		go func() {
			defer wg.Done()
			_, err := r.Take(id, bob)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}
