// Package memory provides an in-process ledger hosting the htlc lock state
// machine behind the swap.Ledger port. It is the reference adapter: tests
// and the demo command run whole swaps across two of these, with a movable
// clock for timelock scenarios and a tunable confirmation delay standing in
// for block finality.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcceus/enderswap/domain"
	"github.com/arcceus/enderswap/htlc"
	"github.com/arcceus/enderswap/swap"
)

// Chain is one simulated ledger: the lock book, the event feed and the
// ledger-local clock. Two parties on the same chain share one Chain and
// bind their own Ledger adapters to it.
type Chain struct {
	name  string
	denom domain.Denomination
	book  *htlc.Book

	mu           sync.Mutex
	clockOffset  time.Duration
	confirmDelay time.Duration
	failCreates  int // pending injected transport failures
	subs         map[int]*subscription
	nextSub      int
}

type subscription struct {
	filter swap.EventFilter
	events chan swap.Event
	errs   chan error
}

// ChainConfig sets up a simulated ledger.
type ChainConfig struct {
	Name         string
	Denomination domain.Denomination
	HashAlgo     domain.HashAlgo
	Policy       htlc.Policy
	ConfirmDelay time.Duration // 0 = instant finality
}

// NewChain creates a simulated ledger.
func NewChain(cfg ChainConfig) *Chain {
	c := &Chain{
		name:         cfg.Name,
		denom:        cfg.Denomination,
		confirmDelay: cfg.ConfirmDelay,
		subs:         make(map[int]*subscription),
	}
	c.book = htlc.NewBook(cfg.HashAlgo, cfg.Policy, c.now)
	return c
}

// now is the chain's own clock. Each chain's "now" is independent — there
// is no shared clock across ledgers, simulated or otherwise.
func (c *Chain) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.clockOffset)
}

// AdvanceClock moves this chain's clock forward, e.g. past a deadline.
func (c *Chain) AdvanceClock(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clockOffset += d
}

// Fund credits an account on this chain.
func (c *Chain) Fund(account string, amount uint64) { c.book.Fund(account, amount) }

// Balance reads an account balance.
func (c *Chain) Balance(account string) uint64 { return c.book.Balance(account) }

// FailNextCreates makes the next n CreateLock submissions fail with a
// transport error, for exercising retry budgets.
func (c *Chain) FailNextCreates(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failCreates = n
}

func (c *Chain) takeCreateFailure() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failCreates > 0 {
		c.failCreates--
		return true
	}
	return false
}

func (c *Chain) publish(ev swap.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sub := range c.subs {
		if !sub.filter.Matches(ev) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			slog.Warn("event dropped, slow subscriber",
				"chain", c.name, "sub", id, "type", string(ev.Type))
		}
	}
}

func (c *Chain) subscribe(ctx context.Context, filter swap.EventFilter) (<-chan swap.Event, <-chan error) {
	sub := &subscription{
		filter: filter,
		events: make(chan swap.Event, 16),
		errs:   make(chan error, 1),
	}

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		close(sub.events)
	}()

	return sub.events, sub.errs
}

// Bind returns the swap.Ledger adapter for one account on this chain.
func (c *Chain) Bind(account string) *Ledger {
	return &Ledger{chain: c, signer: account}
}

// Ledger is one party's view of a Chain; it signs everything as its bound
// account, the way a real adapter owns one key.
type Ledger struct {
	chain  *Chain
	signer string
}

var _ swap.Ledger = (*Ledger)(nil)

func (l *Ledger) Name() string   { return l.chain.name }
func (l *Ledger) Signer() string { return l.signer }

func (l *Ledger) HashAlgo() domain.HashAlgo { return l.chain.book.HashAlgo() }

func (l *Ledger) Denomination() domain.Denomination { return l.chain.denom }

// CreateLock escrows funds from the bound account.
func (l *Ledger) CreateLock(ctx context.Context, req swap.CreateLockRequest) (*swap.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.chain.takeCreateFailure() {
		return nil, errors.New("simulated transport failure")
	}

	base, err := l.chain.denom.ToBase(req.Amount)
	if err != nil {
		return nil, err
	}

	lock, err := l.chain.book.Create(l.signer, htlc.CreateRequest{
		ID:          req.LockID,
		Recipient:   req.Recipient,
		RefundParty: req.RefundParty,
		Amount:      base,
		SecretHash:  req.SecretHash,
		SecretLen:   req.SecretLen,
		Duration:    req.Duration,
	})
	if err != nil {
		return nil, err
	}

	l.chain.publish(swap.Event{
		Type:   swap.EventLockCreated,
		LockID: lock.ID,
		Amount: lock.Amount,
		At:     l.chain.now(),
	})
	return l.handle("create", lock.ID), nil
}

// Claim submits the secret as the bound account. A confirmed claim makes
// the secret part of the chain's public event feed.
func (l *Ledger) Claim(ctx context.Context, id domain.LockID, secret domain.Secret) (*swap.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock, err := l.chain.book.Claim(l.signer, id, secret)
	if err != nil {
		return nil, err
	}

	l.chain.publish(swap.Event{
		Type:   swap.EventLockClaimed,
		LockID: lock.ID,
		Secret: secret,
		Amount: lock.Amount,
		At:     l.chain.now(),
	})
	return l.handle("claim", id), nil
}

// Refund reclaims an expired lock as the bound account.
func (l *Ledger) Refund(ctx context.Context, id domain.LockID) (*swap.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock, err := l.chain.book.Refund(l.signer, id)
	if err != nil {
		return nil, err
	}

	l.chain.publish(swap.Event{
		Type:   swap.EventLockRefunded,
		LockID: lock.ID,
		Amount: lock.Amount,
		At:     l.chain.now(),
	})
	return l.handle("refund", id), nil
}

// GetLock queries the book. No authorization, per the lock machine's rules.
func (l *Ledger) GetLock(ctx context.Context, id domain.LockID) (*domain.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.chain.book.Get(id)
}

// SubscribeEvents streams this chain's lock events until ctx ends.
func (l *Ledger) SubscribeEvents(ctx context.Context, filter swap.EventFilter) (<-chan swap.Event, <-chan error, error) {
	events, errs := l.chain.subscribe(ctx, filter)
	return events, errs, nil
}

// WaitForConfirmation resolves once the chain's simulated finality delay
// has elapsed since submission, within the policy's timeout.
func (l *Ledger) WaitForConfirmation(ctx context.Context, h *swap.Handle, policy swap.ConfirmationPolicy) error {
	finalAt := h.Submitted.Add(l.chain.confirmDelay)
	wait := time.Until(finalAt)
	if wait <= 0 {
		return nil
	}
	if policy.Timeout > 0 && wait > policy.Timeout {
		// Finality will not arrive inside the budget; fail now rather
		// than holding the orchestrator for the full window.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Timeout):
			return fmt.Errorf("no confirmation for %s within %s", h.ID, policy.Timeout)
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

func (l *Ledger) handle(op string, id domain.LockID) *swap.Handle {
	return &swap.Handle{
		ID:        fmt.Sprintf("mem_%s_%s", op, id.Hex()[:8]),
		TxID:      fmt.Sprintf("tx_%s_%d", l.chain.name, time.Now().UnixNano()),
		LockID:    id,
		Submitted: time.Now(),
	}
}
