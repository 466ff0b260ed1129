// Package lightning adapts an LND node to the swap.Ledger port using hold
// invoices. Lightning is a degenerate HTLC ledger: the payment hash is the
// secret hash, a held invoice is a lock, settling reveals the secret, and
// canceling is the refund.
//
// Caveats versus a contract ledger, inherent to the invoice model:
//
//   - CreateLock registers the invoice on the recipient's node; the lock is
//     funded when the counterparty pays the returned payment request, which
//     is what WaitForConfirmation waits for. The depositor is whoever pays,
//     so a distinct refund party cannot be expressed — a cancel always
//     returns funds to the payer.
//   - The refund timelock is the invoice expiry plus the HTLC's CLTV; the
//     node enforces it, not this adapter, and the invoice owner can cancel
//     early. The swap stays safe because early cancel only ever returns
//     funds to the depositor.
package lightning

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcceus/enderswap/clients/lnd"
	"github.com/arcceus/enderswap/domain"
	"github.com/arcceus/enderswap/swap"
)

// Adapter implements swap.Ledger over one LND node.
type Adapter struct {
	name   string
	client *lnd.Client
	pubkey string
	log    *slog.Logger

	// The node indexes invoices by payment hash (= the secret hash);
	// the protocol addresses locks by the derived lock id. CreateLock
	// and RegisterLock record the mapping.
	mu     sync.Mutex
	hashes map[domain.LockID]domain.SecretHash
	// pending maps handle ids to the invoice state that counts as
	// confirmation for that submission.
	pending map[string]lnd.InvoiceState
}

var _ swap.Ledger = (*Adapter)(nil)

// New wraps a connected client. pubkey identifies the node in swap records.
func New(name string, client *lnd.Client, pubkey string, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		name:    name,
		client:  client,
		pubkey:  pubkey,
		log:     logger,
		hashes:  make(map[domain.LockID]domain.SecretHash),
		pending: make(map[string]lnd.InvoiceState),
	}
}

func (a *Adapter) Name() string   { return a.name }
func (a *Adapter) Signer() string { return a.pubkey }

// HashAlgo is fixed: Lightning payment hashes are SHA-256.
func (a *Adapter) HashAlgo() domain.HashAlgo { return domain.HashSHA256 }

// Denomination is satoshis.
func (a *Adapter) Denomination() domain.Denomination {
	return domain.Denomination{Ticker: "BTC", Decimals: 8}
}

// RegisterLock teaches the adapter the secret hash behind a lock id it did
// not create itself, so it can look up and watch the matching invoice.
func (a *Adapter) RegisterLock(id domain.LockID, hash domain.SecretHash) {
	a.mu.Lock()
	a.hashes[id] = hash
	a.mu.Unlock()
}

func (a *Adapter) paymentHash(id domain.LockID) (domain.SecretHash, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	hash, ok := a.hashes[id]
	if !ok {
		return domain.SecretHash{}, fmt.Errorf("%w: no invoice known for %s (RegisterLock first)",
			domain.ErrLockNotFound, id.Hex())
	}
	return hash, nil
}

// CreateLock adds a hold invoice for the secret hash. The returned handle's
// TxID carries the BOLT-11 payment request; the lock counts as created once
// the invoice is ACCEPTED (held), i.e. once the counterparty paid.
func (a *Adapter) CreateLock(ctx context.Context, req swap.CreateLockRequest) (*swap.Handle, error) {
	if req.RefundParty != "" {
		return nil, fmt.Errorf("lightning: refund party cannot differ from the payer")
	}
	sats, err := a.Denomination().ToBase(req.Amount)
	if err != nil {
		return nil, err
	}

	payReq, err := a.client.AddHoldInvoice(ctx,
		"enderswap "+req.LockID.Hex()[:8],
		req.SecretHash[:],
		sats,
		int64(req.Duration/time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("lightning: createLock: %w", err)
	}

	a.RegisterLock(req.LockID, req.SecretHash)
	h := a.handle("create", req.LockID, payReq, lnd.InvoiceAccepted)
	a.log.Info("hold invoice registered",
		"ledger", a.name, "lock_id", req.LockID.Hex(), "payment_request", payReq)
	return h, nil
}

// Claim settles the held invoice by revealing the preimage. The node
// verifies sha256(secret) against the payment hash; a mismatch surfaces as
// an invalid-secret error without touching the invoice.
func (a *Adapter) Claim(ctx context.Context, id domain.LockID, secret domain.Secret) (*swap.Handle, error) {
	hash, err := a.paymentHash(id)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(secret)
	if !bytes.Equal(digest[:], hash[:]) {
		return nil, fmt.Errorf("%w: preimage does not match payment hash", domain.ErrInvalidSecret)
	}

	if err := a.client.SettleInvoice(ctx, secret); err != nil {
		return nil, fmt.Errorf("lightning: claim: %w", err)
	}
	return a.handle("claim", id, "", lnd.InvoiceSettled), nil
}

// Refund cancels the held invoice, returning funds to the payer.
func (a *Adapter) Refund(ctx context.Context, id domain.LockID) (*swap.Handle, error) {
	hash, err := a.paymentHash(id)
	if err != nil {
		return nil, err
	}
	if err := a.client.CancelInvoice(ctx, hash[:]); err != nil {
		return nil, fmt.Errorf("lightning: refund: %w", err)
	}
	return a.handle("refund", id, "", lnd.InvoiceCanceled), nil
}

// GetLock maps the invoice back into the lock model. An OPEN invoice is a
// lock awaiting funding; ACCEPTED is funded and live.
func (a *Adapter) GetLock(ctx context.Context, id domain.LockID) (*domain.Lock, error) {
	hash, err := a.paymentHash(id)
	if err != nil {
		return nil, err
	}
	inv, err := a.client.LookupInvoice(ctx, hash[:])
	if err != nil {
		return nil, fmt.Errorf("lightning: %w", err)
	}

	status := domain.LockStatusLocked
	switch inv.State {
	case lnd.InvoiceSettled:
		status = domain.LockStatusClaimed
	case lnd.InvoiceCanceled:
		status = domain.LockStatusRefunded
	}

	return &domain.Lock{
		ID:         id,
		Recipient:  a.pubkey,
		Amount:     inv.ValueSats,
		SecretHash: hash,
		SecretLen:  domain.SecretSize,
		Deadline:   time.Unix(inv.CreationDate+inv.ExpirySeconds, 0),
		Status:     status,
	}, nil
}

// SubscribeEvents streams one lock's invoice transitions. The invoice model
// has no ledger-wide feed per contract, so the filter must name a lock.
func (a *Adapter) SubscribeEvents(ctx context.Context, filter swap.EventFilter) (<-chan swap.Event, <-chan error, error) {
	if filter.LockID == nil {
		return nil, nil, fmt.Errorf("lightning: subscription requires a lock id filter")
	}
	id := *filter.LockID
	hash, err := a.paymentHash(id)
	if err != nil {
		return nil, nil, err
	}

	updates, errs, err := a.client.SubscribeSingleInvoice(ctx, hash[:])
	if err != nil {
		return nil, nil, fmt.Errorf("lightning: %w", err)
	}

	events := make(chan swap.Event, 4)
	go func() {
		defer close(events)
		for {
			select {
			case <-ctx.Done():
				return
			case inv, ok := <-updates:
				if !ok {
					return
				}
				ev, emit := a.mapUpdate(id, inv)
				if !emit {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, errs, nil
}

func (a *Adapter) mapUpdate(id domain.LockID, inv *lnd.Invoice) (swap.Event, bool) {
	ev := swap.Event{LockID: id, Amount: inv.ValueSats, At: time.Now()}
	switch inv.State {
	case lnd.InvoiceAccepted:
		ev.Type = swap.EventLockCreated
	case lnd.InvoiceSettled:
		ev.Type = swap.EventLockClaimed
		ev.Secret = domain.Secret(inv.Preimage)
	case lnd.InvoiceCanceled:
		ev.Type = swap.EventLockRefunded
	default:
		return swap.Event{}, false
	}
	return ev, true
}

// WaitForConfirmation watches the invoice until it reaches the state the
// handle's submission implies: ACCEPTED for a creation, SETTLED for a
// claim, CANCELED for a refund. Settlement is off-chain, so there is no
// block depth to count — MinConfirmations is satisfied by the state change.
func (a *Adapter) WaitForConfirmation(ctx context.Context, h *swap.Handle, policy swap.ConfirmationPolicy) error {
	a.mu.Lock()
	want, ok := a.pending[h.ID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("lightning: unknown handle %s", h.ID)
	}

	hash, err := a.paymentHash(h.LockID)
	if err != nil {
		return err
	}

	waitCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	updates, errs, err := a.client.SubscribeSingleInvoice(waitCtx, hash[:])
	if err != nil {
		return fmt.Errorf("lightning: %w", err)
	}
	for {
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("lightning: %s not %s: %w", h.ID, want, waitCtx.Err())
		case err := <-errs:
			return fmt.Errorf("lightning: invoice stream: %w", err)
		case inv, ok := <-updates:
			if !ok {
				return fmt.Errorf("lightning: invoice stream closed")
			}
			if inv.State == want {
				a.log.Info("confirmed", "ledger", a.name, "handle", h.ID, "state", string(want))
				return nil
			}
			// A terminal state other than the expected one means the
			// submission lost a race (e.g. cancel vs settle).
			if inv.State == lnd.InvoiceSettled || inv.State == lnd.InvoiceCanceled {
				return fmt.Errorf("lightning: invoice reached %s while waiting for %s",
					inv.State, want)
			}
		}
	}
}

func (a *Adapter) handle(op string, id domain.LockID, payReq string, want lnd.InvoiceState) *swap.Handle {
	h := &swap.Handle{
		ID:        fmt.Sprintf("ln_%s_%s", op, id.Hex()[:8]),
		TxID:      payReq,
		LockID:    id,
		Submitted: time.Now(),
	}
	a.mu.Lock()
	a.pending[h.ID] = want
	a.mu.Unlock()
	return h
}
