// Package objectledger adapts an object-model ledger (locks are first-class
// on-chain objects referencing a shared clock object) to the swap.Ledger
// port. The node exposes a JSON-RPC surface for the HTLC package and a
// websocket feed for its events; transaction signing happens node-side
// under the configured account, so no key material passes through here.
//
// This is the permissive ledger variant: anyone who knows the secret may
// submit a claim (funds always go to the fixed target), refunds are open to
// initiator, target and refund party, and the secret length recorded at
// creation is enforced on claim.
package objectledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/arcceus/enderswap/domain"
	"github.com/arcceus/enderswap/swap"
)

// Config wires one Adapter.
type Config struct {
	Name        string
	RPCEndpoint string // http(s) JSON-RPC
	WSEndpoint  string // ws(s) event feed
	AuthToken   string
	// Account is the node-side signing account for this party.
	Account string
	// AssetType is the ledger's asset type tag, e.g. "0x2::coin::NATIVE".
	AssetType string
	// Denomination of AssetType.
	Denomination domain.Denomination
	// HashAlgo the deployed HTLC package verifies secrets with.
	HashAlgo domain.HashAlgo
}

// Adapter implements swap.Ledger over the node's htlc_* RPC surface.
type Adapter struct {
	name       string
	rpc        *rpcClient
	wsEndpoint string
	authToken  string
	account    string
	assetType  string
	denom      domain.Denomination
	algo       domain.HashAlgo
	log        *slog.Logger

	// The ledger addresses locks by native object id; the protocol
	// addresses them by the hash-derived lock id. The node indexes both,
	// but claims and refunds need the object id, so resolutions are
	// remembered here.
	mu      sync.Mutex
	objects map[domain.LockID]string
}

var _ swap.Ledger = (*Adapter)(nil)

// New builds an adapter. No connection is made until the first call.
func New(cfg Config, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		name:       cfg.Name,
		rpc:        newRPCClient(cfg.RPCEndpoint, cfg.AuthToken),
		wsEndpoint: cfg.WSEndpoint,
		authToken:  cfg.AuthToken,
		account:    cfg.Account,
		assetType:  cfg.AssetType,
		denom:      cfg.Denomination,
		algo:       cfg.HashAlgo,
		log:        logger,
		objects:    make(map[domain.LockID]string),
	}
}

func (a *Adapter) Name() string              { return a.name }
func (a *Adapter) Signer() string            { return a.account }
func (a *Adapter) HashAlgo() domain.HashAlgo { return a.algo }

func (a *Adapter) Denomination() domain.Denomination { return a.denom }

type createLockParams struct {
	AssetType    string `json:"assetType"`
	Sender       string `json:"sender"`
	Target       string `json:"target"`
	RefundParty  string `json:"refundParty,omitempty"`
	Amount       uint64 `json:"amount,string"`
	SecretHash   string `json:"secretHash"`
	SecretLength int    `json:"secretLength"`
	DurationMs   int64  `json:"durationMs"`
}

type txResult struct {
	LockObjectID string `json:"lockObjectId,omitempty"`
	TxDigest     string `json:"txDigest"`
}

// CreateLock submits the creation transaction. The ledger measures the
// timelock in milliseconds against its shared clock object.
func (a *Adapter) CreateLock(ctx context.Context, req swap.CreateLockRequest) (*swap.Handle, error) {
	base, err := a.denom.ToBase(req.Amount)
	if err != nil {
		return nil, err
	}

	var res txResult
	err = a.rpc.call(ctx, "htlc_createLock", []interface{}{createLockParams{
		AssetType:    a.assetType,
		Sender:       a.account,
		Target:       req.Recipient,
		RefundParty:  req.RefundParty,
		Amount:       base,
		SecretHash:   req.SecretHash.Hex(),
		SecretLength: req.SecretLen,
		DurationMs:   req.Duration.Milliseconds(),
	}}, &res)
	if err != nil {
		return nil, fmt.Errorf("objectledger: createLock: %w", err)
	}

	a.rememberObject(req.LockID, res.LockObjectID)
	a.log.Info("createLock submitted",
		"ledger", a.name, "lock_id", req.LockID.Hex(),
		"object_id", res.LockObjectID, "tx", res.TxDigest)
	return a.handle(res.TxDigest, req.LockID), nil
}

// Claim submits the secret against the lock object.
func (a *Adapter) Claim(ctx context.Context, id domain.LockID, secret domain.Secret) (*swap.Handle, error) {
	objectID, err := a.resolveObject(ctx, id)
	if err != nil {
		return nil, err
	}

	var res txResult
	err = a.rpc.call(ctx, "htlc_claim", []interface{}{map[string]interface{}{
		"assetType":    a.assetType,
		"sender":       a.account,
		"lockObjectId": objectID,
		"secret":       secret.Hex(),
	}}, &res)
	if err != nil {
		return nil, fmt.Errorf("objectledger: claim: %w", err)
	}

	a.log.Info("claim submitted", "ledger", a.name, "lock_id", id.Hex(), "tx", res.TxDigest)
	return a.handle(res.TxDigest, id), nil
}

// Refund reclaims an expired lock object.
func (a *Adapter) Refund(ctx context.Context, id domain.LockID) (*swap.Handle, error) {
	objectID, err := a.resolveObject(ctx, id)
	if err != nil {
		return nil, err
	}

	var res txResult
	err = a.rpc.call(ctx, "htlc_refund", []interface{}{map[string]interface{}{
		"assetType":    a.assetType,
		"sender":       a.account,
		"lockObjectId": objectID,
	}}, &res)
	if err != nil {
		return nil, fmt.Errorf("objectledger: refund: %w", err)
	}

	a.log.Info("refund submitted", "ledger", a.name, "lock_id", id.Hex(), "tx", res.TxDigest)
	return a.handle(res.TxDigest, id), nil
}

type wireLock struct {
	LockObjectID string `json:"lockObjectId"`
	Initiator    string `json:"initiator"`
	Target       string `json:"target"`
	RefundParty  string `json:"refundParty"`
	Amount       uint64 `json:"amount,string"`
	SecretHash   string `json:"secretHash"`
	SecretLength int    `json:"secretLength"`
	DeadlineMs   int64  `json:"deadlineMs"`
	Status       string `json:"status"` // locked | claimed | refunded
}

// GetLock queries by the hash-derived lock id.
func (a *Adapter) GetLock(ctx context.Context, id domain.LockID) (*domain.Lock, error) {
	var wl *wireLock
	err := a.rpc.call(ctx, "htlc_getLock", []interface{}{map[string]string{
		"lockId": id.Hex(),
	}}, &wl)
	if err != nil {
		return nil, fmt.Errorf("objectledger: getLock: %w", err)
	}
	if wl == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockNotFound, id.Hex())
	}

	a.rememberObject(id, wl.LockObjectID)

	hash, err := domain.ParseSecretHash(wl.SecretHash)
	if err != nil {
		return nil, fmt.Errorf("objectledger: lock %s secret hash: %w", id.Hex(), err)
	}
	var status domain.LockStatus
	switch wl.Status {
	case "locked":
		status = domain.LockStatusLocked
	case "claimed":
		status = domain.LockStatusClaimed
	case "refunded":
		status = domain.LockStatusRefunded
	default:
		return nil, fmt.Errorf("objectledger: lock %s has unknown status %q", id.Hex(), wl.Status)
	}

	return &domain.Lock{
		ID:          id,
		Depositor:   wl.Initiator,
		Recipient:   wl.Target,
		RefundParty: wl.RefundParty,
		Amount:      wl.Amount,
		SecretHash:  hash,
		SecretLen:   wl.SecretLength,
		Deadline:    msToTime(wl.DeadlineMs),
		Status:      status,
	}, nil
}

// SubscribeEvents streams the HTLC package's events over websocket.
func (a *Adapter) SubscribeEvents(ctx context.Context, filter swap.EventFilter) (<-chan swap.Event, <-chan error, error) {
	return a.subscribeWS(ctx, filter)
}

// WaitForConfirmation polls the transaction digest until the node reports
// the policy's checkpoint depth.
func (a *Adapter) WaitForConfirmation(ctx context.Context, h *swap.Handle, policy swap.ConfirmationPolicy) error {
	interval := policy.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	waitCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var status struct {
			Status      string `json:"status"` // pending | confirmed | failed
			Checkpoints int    `json:"checkpoints"`
		}
		err := a.rpc.call(waitCtx, "htlc_getTransactionStatus", []interface{}{map[string]string{
			"txDigest": h.TxID,
		}}, &status)
		if err == nil {
			switch status.Status {
			case "failed":
				return fmt.Errorf("objectledger: tx %s failed", h.TxID)
			case "confirmed":
				if status.Checkpoints >= policy.MinConfirmations {
					a.log.Info("confirmed",
						"ledger", a.name, "tx", h.TxID, "checkpoints", status.Checkpoints)
					return nil
				}
			}
		} else {
			a.log.Warn("status poll failed", "ledger", a.name, "tx", h.TxID, "err", err)
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("objectledger: tx %s unconfirmed: %w", h.TxID, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (a *Adapter) rememberObject(id domain.LockID, objectID string) {
	if objectID == "" {
		return
	}
	a.mu.Lock()
	a.objects[id] = objectID
	a.mu.Unlock()
}

// resolveObject maps the protocol lock id to the native object id, asking
// the node when this adapter did not create the lock itself.
func (a *Adapter) resolveObject(ctx context.Context, id domain.LockID) (string, error) {
	a.mu.Lock()
	objectID, ok := a.objects[id]
	a.mu.Unlock()
	if ok {
		return objectID, nil
	}
	if _, err := a.GetLock(ctx, id); err != nil {
		return "", err
	}
	a.mu.Lock()
	objectID, ok = a.objects[id]
	a.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: no object id for %s", domain.ErrLockNotFound, id.Hex())
	}
	return objectID, nil
}

func (a *Adapter) handle(txDigest string, id domain.LockID) *swap.Handle {
	return &swap.Handle{
		ID:        "obj_" + txDigest,
		TxID:      txDigest,
		LockID:    id,
		Submitted: time.Now(),
	}
}

func msToTime(ms int64) time.Time {
	return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond))
}
