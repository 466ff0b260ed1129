package htlc

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcceus/enderswap/domain"
)

// Clock supplies the ledger's notion of "now". Each ledger has its own;
// there is no shared clock across ledgers.
type Clock func() time.Time

// Book holds every lock and every account balance of one ledger instance.
// All transitions are serialized by its mutex, mirroring the transaction
// ordering a real ledger would provide: of two racing claim/refund attempts
// exactly one succeeds and the loser observes a terminal-state error.
type Book struct {
	mu       sync.Mutex
	locks    map[domain.LockID]*domain.Lock
	balances map[string]uint64

	algo   domain.HashAlgo
	policy Policy
	now    Clock
}

// NewBook creates an empty ledger book.
func NewBook(algo domain.HashAlgo, policy Policy, clock Clock) *Book {
	if clock == nil {
		clock = time.Now
	}
	return &Book{
		locks:    make(map[domain.LockID]*domain.Lock),
		balances: make(map[string]uint64),
		algo:     algo,
		policy:   policy,
		now:      clock,
	}
}

// HashAlgo returns the digest this ledger applies to secrets.
func (b *Book) HashAlgo() domain.HashAlgo { return b.algo }

// Fund credits an account. Test and demo setup only; a real ledger funds
// accounts through its own transfer machinery.
func (b *Book) Fund(account string, amount uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

// Balance returns an account's spendable balance.
func (b *Book) Balance(account string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account]
}

// CreateRequest carries the parameters of a new lock.
type CreateRequest struct {
	ID          domain.LockID
	Recipient   string
	RefundParty string // defaults to the depositor
	Amount      uint64
	SecretHash  domain.SecretHash
	SecretLen   int // 0 disables the length check
	Duration    time.Duration
}

// Create moves Amount from the depositor's balance into a new lock's
// custody. The deadline is fixed at creation and never recomputed.
func (b *Book) Create(depositor string, req CreateRequest) (*domain.Lock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.Amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	if _, exists := b.locks[req.ID]; exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateLock, req.ID.Hex())
	}
	if b.balances[depositor] < req.Amount {
		return nil, fmt.Errorf("insufficient balance: %s has %d, lock needs %d",
			depositor, b.balances[depositor], req.Amount)
	}

	refundParty := req.RefundParty
	if refundParty == "" {
		refundParty = depositor
	}

	now := b.now()
	lock := &domain.Lock{
		ID:          req.ID,
		Depositor:   depositor,
		Recipient:   req.Recipient,
		RefundParty: refundParty,
		Amount:      req.Amount,
		SecretHash:  req.SecretHash,
		SecretLen:   req.SecretLen,
		Deadline:    now.Add(req.Duration),
		Status:      domain.LockStatusLocked,
		CreatedAt:   now,
	}

	b.balances[depositor] -= req.Amount
	b.locks[req.ID] = lock

	slog.Info("lock created",
		"lock_id", req.ID.Hex(),
		"depositor", depositor,
		"recipient", req.Recipient,
		"amount", req.Amount,
		"deadline", lock.Deadline,
	)
	return snapshot(lock), nil
}

// Claim transfers the locked amount to the recipient if the caller is
// authorized, the claim window is still open and the secret hashes to the
// stored value. The status flip happens before the balance credit so no
// observer can see moved funds on a still-LOCKED lock, and a re-entrant
// transfer cannot claim twice.
func (b *Book) Claim(caller string, id domain.LockID, secret domain.Secret) (*domain.Lock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, ok := b.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockNotFound, id.Hex())
	}
	if lock.Status.Terminal() {
		return nil, domain.ErrAlreadyTerminal
	}
	if !b.policy.mayClaim(caller, lock.Recipient) {
		return nil, domain.ErrNotRecipient
	}
	if !b.now().Before(lock.Deadline) {
		return nil, domain.ErrTimelockExpired
	}
	if lock.SecretLen != 0 && len(secret) != lock.SecretLen {
		return nil, fmt.Errorf("%w: secret length %d, want %d",
			domain.ErrInvalidSecret, len(secret), lock.SecretLen)
	}
	digest, err := b.algo.Digest(secret)
	if err != nil {
		return nil, err
	}
	if !digest.Equal(lock.SecretHash) {
		return nil, domain.ErrInvalidSecret
	}

	lock.Status = domain.LockStatusClaimed
	b.balances[lock.Recipient] += lock.Amount

	slog.Info("lock claimed",
		"lock_id", id.Hex(),
		"recipient", lock.Recipient,
		"amount", lock.Amount,
	)
	return snapshot(lock), nil
}

// Refund returns the locked amount to the refund party once the deadline
// has passed and no claim happened.
func (b *Book) Refund(caller string, id domain.LockID) (*domain.Lock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, ok := b.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockNotFound, id.Hex())
	}
	if lock.Status.Terminal() {
		return nil, domain.ErrAlreadyTerminal
	}
	if !b.policy.mayRefund(caller, lock.Depositor, lock.Recipient, lock.RefundParty) {
		return nil, domain.ErrNotAuthorized
	}
	if b.now().Before(lock.Deadline) {
		return nil, domain.ErrTimelockNotExpired
	}

	lock.Status = domain.LockStatusRefunded
	b.balances[lock.RefundParty] += lock.Amount

	slog.Info("lock refunded",
		"lock_id", id.Hex(),
		"refund_party", lock.RefundParty,
		"amount", lock.Amount,
	)
	return snapshot(lock), nil
}

// Get returns a copy of the lock. Readable by anyone, no authorization.
func (b *Book) Get(id domain.LockID) (*domain.Lock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lock, ok := b.locks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockNotFound, id.Hex())
	}
	return snapshot(lock), nil
}

func snapshot(l *domain.Lock) *domain.Lock {
	cp := *l
	return &cp
}
