package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arcceus/enderswap/domain"
)

// Party bundles one participant's adapters: its signing identity on ledger A
// and on ledger B. The orchestrator never touches key material — it only
// picks which party's adapter submits each operation.
type Party struct {
	OnA Ledger
	OnB Ledger
}

// SwapParams describes the exchange to perform.
type SwapParams struct {
	// AmountA is what the initiator locks on ledger A for the responder;
	// AmountB is what the responder locks on ledger B for the initiator.
	// Both are human-denominated and scaled per ledger.
	AmountA decimal.Decimal
	AmountB decimal.Decimal

	// RecipientOnA is the responder's address on ledger A.
	// RecipientOnB is the initiator's address on ledger B.
	RecipientOnA string
	RecipientOnB string

	// Optional distinct refund destinations. Empty = the depositor.
	RefundPartyA string
	RefundPartyB string

	// LongTimelock guards the initiator's lock (side A), ShortTimelock
	// the responder's (side B). Long > Short is a hard precondition: the
	// margin between them is the initiator's window to claim side A
	// after the secret becomes public.
	LongTimelock  time.Duration
	ShortTimelock time.Duration
}

// OrchestratorConfig wires an orchestrator.
type OrchestratorConfig struct {
	Initiator Party
	Responder Party

	Confirm ConfirmationPolicy // zero value → DefaultConfirmationPolicy
	Retry   RetryPolicy        // zero value → DefaultRetryPolicy

	// WaitForRefundWindow makes the refund branch poll until each lock's
	// deadline passes instead of leaving the swap in REFUND_PENDING for
	// an external sweeper.
	WaitForRefundWindow bool

	Logger *slog.Logger
}

// Orchestrator drives one swap end-to-end: secret generation, the two lock
// creations under the asymmetric-timelock policy, the revealing claim, the
// counterpart claim, and the refund branch when a step fails. It is a single
// sequential flow — every step's input is a hard dependency of the next, so
// nothing runs in parallel.
type Orchestrator struct {
	initiator Party
	responder Party
	confirm   ConfirmationPolicy
	retry     RetryPolicy
	waitOut   bool
	log       *slog.Logger
}

// NewOrchestrator validates the wiring and returns an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Initiator.OnA == nil || cfg.Initiator.OnB == nil ||
		cfg.Responder.OnA == nil || cfg.Responder.OnB == nil {
		return nil, errors.New("swap: both parties need adapters on both ledgers")
	}
	if cfg.Confirm == (ConfirmationPolicy{}) {
		cfg.Confirm = DefaultConfirmationPolicy()
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		initiator: cfg.Initiator,
		responder: cfg.Responder,
		confirm:   cfg.Confirm,
		retry:     cfg.Retry,
		waitOut:   cfg.WaitForRefundWindow,
		log:       cfg.Logger,
	}, nil
}

// Run executes the full swap. The returned Swap carries the final state even
// when an error is returned: COMPLETED on success, ABANDONED when nothing
// was at risk, REFUNDED or REFUND_PENDING after the failure branch.
func (o *Orchestrator) Run(ctx context.Context, params SwapParams) (*domain.Swap, error) {
	algo, err := o.validateLedgers()
	if err != nil {
		return nil, err
	}
	if params.ShortTimelock <= 0 || params.LongTimelock <= params.ShortTimelock {
		return nil, fmt.Errorf("%w: long=%s short=%s",
			domain.ErrTimelockOrdering, params.LongTimelock, params.ShortTimelock)
	}

	baseA, err := o.initiator.OnA.Denomination().ToBase(params.AmountA)
	if err != nil {
		return nil, fmt.Errorf("side A amount: %w", err)
	}
	baseB, err := o.responder.OnB.Denomination().ToBase(params.AmountB)
	if err != nil {
		return nil, fmt.Errorf("side B amount: %w", err)
	}

	secret, err := domain.NewSecret()
	if err != nil {
		return nil, err
	}
	secretHash, err := algo.Digest(secret)
	if err != nil {
		return nil, err
	}
	lockID := domain.DeriveLockID(secretHash)

	now := time.Now()
	sw := &domain.Swap{
		ID:            uuid.NewString(),
		State:         domain.SwapStateInit,
		SecretHash:    secretHash,
		LockID:        lockID,
		LongTimelock:  params.LongTimelock,
		ShortTimelock: params.ShortTimelock,
		SideA: domain.SwapSide{
			Ledger:      o.initiator.OnA.Name(),
			Recipient:   params.RecipientOnA,
			RefundParty: params.RefundPartyA,
			Amount:      params.AmountA,
			BaseAmount:  baseA,
		},
		SideB: domain.SwapSide{
			Ledger:      o.responder.OnB.Name(),
			Recipient:   params.RecipientOnB,
			RefundParty: params.RefundPartyB,
			Amount:      params.AmountB,
			BaseAmount:  baseB,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	o.log.Info("swap starting",
		"swap_id", sw.ID,
		"lock_id", lockID.Hex(),
		"ledger_a", sw.SideA.Ledger,
		"ledger_b", sw.SideB.Ledger,
		"hash_algo", string(algo),
	)

	// Step 3–4: initiator locks side A under the long timelock. Until
	// this confirms only the initiator has anything at stake, so any
	// failure here abandons the swap outright.
	o.transition(sw, domain.SwapStateSideALocking)
	handleA, err := o.submit(ctx, "create lock A", func(c context.Context) (*Handle, error) {
		return o.initiator.OnA.CreateLock(c, CreateLockRequest{
			LockID:      lockID,
			Recipient:   params.RecipientOnA,
			RefundParty: params.RefundPartyA,
			Amount:      params.AmountA,
			SecretHash:  secretHash,
			SecretLen:   domain.SecretSize,
			Duration:    params.LongTimelock,
		})
	})
	if err != nil {
		o.transition(sw, domain.SwapStateAbandoned)
		return sw, err
	}
	if err := o.initiator.OnA.WaitForConfirmation(ctx, handleA, o.confirm); err != nil {
		o.transition(sw, domain.SwapStateAbandoned)
		return sw, fmt.Errorf("%w: lock A: %v", domain.ErrConfirmationFailed, err)
	}
	o.noteDeadline(ctx, o.initiator.OnA, lockID, &sw.SideA)
	o.transition(sw, domain.SwapStateSideALocked)

	// Step 5–6: responder locks side B with the same hash under the
	// short timelock. From here a failure leaves real funds locked, so
	// the fallback is the refund branch, not abandonment.
	o.transition(sw, domain.SwapStateSideBLocking)
	handleB, err := o.submit(ctx, "create lock B", func(c context.Context) (*Handle, error) {
		return o.responder.OnB.CreateLock(c, CreateLockRequest{
			LockID:      lockID,
			Recipient:   params.RecipientOnB,
			RefundParty: params.RefundPartyB,
			Amount:      params.AmountB,
			SecretHash:  secretHash,
			SecretLen:   domain.SecretSize,
			Duration:    params.ShortTimelock,
		})
	})
	if err != nil {
		return sw, o.steerToRefund(ctx, sw, err, refundTarget{o.initiator.OnA, lockID})
	}
	if err := o.responder.OnB.WaitForConfirmation(ctx, handleB, o.confirm); err != nil {
		err = fmt.Errorf("%w: lock B: %v", domain.ErrConfirmationFailed, err)
		return sw, o.steerToRefund(ctx, sw, err, refundTarget{o.initiator.OnA, lockID})
	}
	o.noteDeadline(ctx, o.responder.OnB, lockID, &sw.SideB)
	o.transition(sw, domain.SwapStateSideBLocked)

	// Step 7: the initiator claims side B, revealing the secret. This is
	// the irrevocable disclosure point — once submitted, anyone watching
	// ledger B can extract the secret.
	o.transition(sw, domain.SwapStateSideBClaiming)
	claimB, err := o.submit(ctx, "claim lock B", func(c context.Context) (*Handle, error) {
		return o.initiator.OnB.Claim(c, lockID, secret)
	})
	if err != nil {
		// Nothing revealed; both locks ride out their own timelocks.
		return sw, o.steerToRefund(ctx, sw, err,
			refundTarget{o.initiator.OnA, lockID},
			refundTarget{o.responder.OnB, lockID})
	}
	if err := o.initiator.OnB.WaitForConfirmation(ctx, claimB, o.confirm); err != nil {
		// The claim was broadcast: the secret must be treated as public
		// even though confirmation is unknown. Refunding side B here
		// could race its own claim, so only side A is steered.
		o.log.Warn("claim B unconfirmed after reveal", "swap_id", sw.ID, "err", err)
		err = fmt.Errorf("%w: claim B: %v", domain.ErrConfirmationFailed, err)
		return sw, o.steerToRefund(ctx, sw, err, refundTarget{o.initiator.OnA, lockID})
	}
	o.transition(sw, domain.SwapStateSideBClaimed)

	// Step 8: the responder claims side A with the now-public secret.
	// The asymmetric-timelock margin is exactly the window this step has.
	o.transition(sw, domain.SwapStateSideAClaiming)
	claimA, err := o.submit(ctx, "claim lock A", func(c context.Context) (*Handle, error) {
		return o.responder.OnA.Claim(c, lockID, secret)
	})
	if err != nil {
		return sw, o.steerToRefund(ctx, sw, err, refundTarget{o.initiator.OnA, lockID})
	}
	if err := o.responder.OnA.WaitForConfirmation(ctx, claimA, o.confirm); err != nil {
		err = fmt.Errorf("%w: claim A: %v", domain.ErrConfirmationFailed, err)
		return sw, o.steerToRefund(ctx, sw, err, refundTarget{o.initiator.OnA, lockID})
	}

	o.transition(sw, domain.SwapStateCompleted)
	o.log.Info("swap completed", "swap_id", sw.ID, "lock_id", lockID.Hex())
	return sw, nil
}

// validateLedgers checks the fail-fast preconditions: each ledger's adapters
// agree with each other, and the two ledgers share one hash algorithm.
// Mixing digest primitives would break the protocol silently, so this is
// enforced centrally rather than per ledger.
func (o *Orchestrator) validateLedgers() (domain.HashAlgo, error) {
	algoA := o.initiator.OnA.HashAlgo()
	if got := o.responder.OnA.HashAlgo(); got != algoA {
		return "", fmt.Errorf("%w: ledger A adapters report %s and %s",
			domain.ErrHashAlgoMismatch, algoA, got)
	}
	algoB := o.initiator.OnB.HashAlgo()
	if got := o.responder.OnB.HashAlgo(); got != algoB {
		return "", fmt.Errorf("%w: ledger B adapters report %s and %s",
			domain.ErrHashAlgoMismatch, algoB, got)
	}
	if algoA != algoB {
		return "", fmt.Errorf("%w: ledger A uses %s, ledger B uses %s",
			domain.ErrHashAlgoMismatch, algoA, algoB)
	}
	return algoA, nil
}

// noteDeadline records the confirmed lock's deadline on the swap side.
// Best effort: the swap proceeds even if the read fails.
func (o *Orchestrator) noteDeadline(ctx context.Context, l Ledger, id domain.LockID, side *domain.SwapSide) {
	lock, err := l.GetLock(ctx, id)
	if err != nil {
		o.log.Warn("deadline read failed", "ledger", l.Name(), "lock_id", id.Hex(), "err", err)
		return
	}
	side.Deadline = lock.Deadline
}

func (o *Orchestrator) transition(sw *domain.Swap, state domain.SwapState) {
	sw.State = state
	sw.UpdatedAt = time.Now()
	o.log.Info("swap state", "swap_id", sw.ID, "state", string(state))
}

// submit runs a ledger call under the retry budget. Domain precondition
// failures are surfaced immediately — only transport-level errors are
// retried, and only finitely.
func (o *Orchestrator) submit(ctx context.Context, op string, fn func(context.Context) (*Handle, error)) (*Handle, error) {
	var lastErr error
	for attempt := 1; attempt <= o.retry.Attempts; attempt++ {
		h, err := fn(ctx)
		if err == nil {
			return h, nil
		}
		if isDomainError(err) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		lastErr = err
		o.log.Warn("submission failed",
			"op", op, "attempt", attempt, "of", o.retry.Attempts, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.retry.Backoff):
		}
	}
	return nil, fmt.Errorf("%s: retry budget exhausted: %w", op, lastErr)
}

type refundTarget struct {
	ledger Ledger
	lockID domain.LockID
}

// steerToRefund is the failure branch: for each still-locked side, attempt a
// refund, waiting out the timelock window if configured to. The cause error
// is returned (wrapped) so callers see why the swap degraded.
func (o *Orchestrator) steerToRefund(ctx context.Context, sw *domain.Swap, cause error, targets ...refundTarget) error {
	o.transition(sw, domain.SwapStateRefundPending)
	o.log.Warn("swap failed, steering to refund", "swap_id", sw.ID, "err", cause)

	refunded := 0
	pending := 0
	for _, t := range targets {
		switch err := o.refundOne(ctx, t); {
		case err == nil:
			refunded++
		case errors.Is(err, domain.ErrAlreadyTerminal):
			// Claimed or refunded out from under us — nothing left locked.
			refunded++
		case errors.Is(err, domain.ErrTimelockNotExpired):
			o.log.Info("refund window not open, leaving for sweeper",
				"swap_id", sw.ID, "ledger", t.ledger.Name())
			pending++
		default:
			o.log.Error("refund failed",
				"swap_id", sw.ID, "ledger", t.ledger.Name(), "err", err)
			pending++
		}
	}

	if pending == 0 && refunded > 0 {
		o.transition(sw, domain.SwapStateRefunded)
	}
	return fmt.Errorf("swap %s failed: %w", sw.ID, cause)
}

// refundOne submits a refund for one lock. When the window is not open yet
// and waiting is enabled, it polls until the ledger accepts the refund, the
// confirmation budget runs out, or the context ends.
func (o *Orchestrator) refundOne(ctx context.Context, t refundTarget) error {
	deadline := time.Now().Add(o.confirm.Timeout)
	for {
		h, err := t.ledger.Refund(ctx, t.lockID)
		if err == nil {
			return t.ledger.WaitForConfirmation(ctx, h, o.confirm)
		}
		if !errors.Is(err, domain.ErrTimelockNotExpired) || !o.waitOut {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: waiting for refund window: %v",
				domain.ErrConfirmationFailed, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.confirm.PollInterval):
		}
	}
}

var domainErrors = []error{
	domain.ErrInvalidAmount,
	domain.ErrDuplicateLock,
	domain.ErrMalformedID,
	domain.ErrLockNotFound,
	domain.ErrNotRecipient,
	domain.ErrNotAuthorized,
	domain.ErrTimelockExpired,
	domain.ErrTimelockNotExpired,
	domain.ErrInvalidSecret,
	domain.ErrAlreadyTerminal,
}

func isDomainError(err error) bool {
	for _, sentinel := range domainErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
