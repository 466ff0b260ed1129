package swap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arcceus/enderswap/domain"
)

// Watcher acts on the responder's behalf when the two halves of a swap are
// driven by separate processes: it watches the reveal ledger for the claim
// that discloses the secret, then claims the counterpart lock with it.
type Watcher struct {
	reveal      Ledger // ledger where the initiator's claim reveals the secret
	counterpart Ledger // responder's adapter on the other ledger
	confirm     ConfirmationPolicy
	backoff     time.Duration
	log         *slog.Logger
}

// NewWatcher builds a watcher for one swap direction. The reveal ledger is
// where the counterparty will claim; the counterpart adapter must be bound
// to the identity entitled to claim the other lock.
func NewWatcher(reveal, counterpart Ledger, confirm ConfirmationPolicy, logger *slog.Logger) *Watcher {
	if confirm == (ConfirmationPolicy{}) {
		confirm = DefaultConfirmationPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		reveal:      reveal,
		counterpart: counterpart,
		confirm:     confirm,
		backoff:     time.Second,
		log:         logger,
	}
}

// Run blocks until the secret for lockID is revealed on the reveal ledger
// and the counterpart lock is claimed with it, or the context ends. The
// subscription is re-established on stream errors — a dropped stream must
// not cost the responder its claim window.
func (w *Watcher) Run(ctx context.Context, lockID domain.LockID) (*Handle, error) {
	for {
		secret, err := w.awaitSecret(ctx, lockID)
		if err == nil {
			return w.claimCounterpart(ctx, lockID, secret)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		w.log.Warn("event stream lost, resubscribing",
			"ledger", w.reveal.Name(), "lock_id", lockID.Hex(), "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(w.backoff):
		}
	}
}

// awaitSecret subscribes to the reveal ledger and waits for the CLAIMED
// event of the lock. Event streams are not restartable from an offset, so a
// claim that lands during a resubscribe gap surfaces as a stream timeout for
// the caller's context to bound.
func (w *Watcher) awaitSecret(ctx context.Context, lockID domain.LockID) (domain.Secret, error) {
	events, errs, err := w.reveal.SubscribeEvents(ctx, EventFilter{LockID: &lockID})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", w.reveal.Name(), err)
	}

	w.log.Info("watching for secret reveal",
		"ledger", w.reveal.Name(), "lock_id", lockID.Hex())

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err, ok := <-errs:
			if !ok {
				return nil, fmt.Errorf("error stream closed")
			}
			return nil, fmt.Errorf("stream error: %w", err)
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("event stream closed")
			}
			if ev.Type != EventLockClaimed || ev.LockID != lockID {
				continue
			}
			if len(ev.Secret) == 0 {
				return nil, fmt.Errorf("claimed event for %s carried no secret", lockID.Hex())
			}
			w.log.Info("secret revealed",
				"ledger", w.reveal.Name(), "lock_id", lockID.Hex())
			return ev.Secret, nil
		}
	}
}

func (w *Watcher) claimCounterpart(ctx context.Context, lockID domain.LockID, secret domain.Secret) (*Handle, error) {
	// Paranoia: re-derive the hash against the counterpart's stored lock
	// before spending a transaction on a claim that cannot succeed.
	lock, err := w.counterpart.GetLock(ctx, lockID)
	if err != nil {
		return nil, fmt.Errorf("counterpart lock lookup: %w", err)
	}
	digest, err := w.counterpart.HashAlgo().Digest(secret)
	if err != nil {
		return nil, err
	}
	if !digest.Equal(lock.SecretHash) {
		return nil, fmt.Errorf("%w: revealed secret does not open counterpart lock",
			domain.ErrInvalidSecret)
	}

	h, err := w.counterpart.Claim(ctx, lockID, secret)
	if err != nil {
		return nil, fmt.Errorf("counterpart claim: %w", err)
	}
	if err := w.counterpart.WaitForConfirmation(ctx, h, w.confirm); err != nil {
		return h, fmt.Errorf("%w: counterpart claim: %v", domain.ErrConfirmationFailed, err)
	}

	w.log.Info("counterpart claimed",
		"ledger", w.counterpart.Name(), "lock_id", lockID.Hex(), "tx", h.TxID)
	return h, nil
}
