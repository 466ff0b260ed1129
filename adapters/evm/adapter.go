// Package evm adapts an EVM-style ledger's HTLC contract to the swap.Ledger
// port. It talks to the chain through an ethclient backend and a bound
// contract; key material stays inside the adapter's transactor.
//
// The contract denominates locks in wei. Lock amounts are carried as uint64
// base units upstream, which caps a single lock at ~18.4 ETH; larger locks
// are rejected at unit scaling.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"github.com/arcceus/enderswap/domain"
	"github.com/arcceus/enderswap/swap"
)

// Config wires one Adapter instance.
type Config struct {
	// Name labels this ledger in swap records, e.g. "evm-mainnet".
	Name string
	// RPCURL must be a websocket endpoint when SubscribeEvents is used.
	RPCURL string
	// Contract is the deployed HTLC contract address.
	Contract string
	// PrivateKey is the hex-encoded signing key for this party.
	PrivateKey string
	// ChainID for EIP-155 signing.
	ChainID int64
	// HashAlgo is fixed by the deployed contract's verification opcode:
	// sha256 or keccak256.
	HashAlgo domain.HashAlgo
}

// Adapter implements swap.Ledger against the EVM HTLC contract.
type Adapter struct {
	name     string
	client   *ethclient.Client
	contract *bind.BoundContract
	addr     common.Address
	key      *ecdsa.PrivateKey
	signer   common.Address
	chainID  *big.Int
	algo     domain.HashAlgo
	log      *slog.Logger
}

var _ swap.Ledger = (*Adapter)(nil)

// New dials the RPC endpoint and binds the HTLC contract.
func New(cfg Config, logger *slog.Logger) (*Adapter, error) {
	key, err := crypto.HexToECDSA(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("evm: parse private key: %w", err)
	}
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	addr := common.HexToAddress(cfg.Contract)
	return &Adapter{
		name:     cfg.Name,
		client:   client,
		contract: bind.NewBoundContract(addr, htlcABI, client, client, client),
		addr:     addr,
		key:      key,
		signer:   crypto.PubkeyToAddress(key.PublicKey),
		chainID:  big.NewInt(cfg.ChainID),
		algo:     cfg.HashAlgo,
		log:      logger,
	}, nil
}

// Close releases the RPC connection.
func (a *Adapter) Close() { a.client.Close() }

func (a *Adapter) Name() string              { return a.name }
func (a *Adapter) Signer() string            { return a.signer.Hex() }
func (a *Adapter) HashAlgo() domain.HashAlgo { return a.algo }

// Denomination reports wei as the base unit.
func (a *Adapter) Denomination() domain.Denomination {
	return domain.Denomination{Ticker: "ETH", Decimals: 18}
}

func (a *Adapter) txOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(a.key, a.chainID)
	if err != nil {
		return nil, fmt.Errorf("evm: transactor: %w", err)
	}
	opts.Context = ctx
	opts.Value = value
	return opts, nil
}

// CreateLock sends the payable createLock transaction. The contract ignores
// any refund-party distinct from the depositor; callers needing that split
// must hold the lock from the address meant to receive the refund.
func (a *Adapter) CreateLock(ctx context.Context, req swap.CreateLockRequest) (*swap.Handle, error) {
	wei, err := a.Denomination().ToBase(req.Amount)
	if err != nil {
		return nil, err
	}
	opts, err := a.txOpts(ctx, new(big.Int).SetUint64(wei))
	if err != nil {
		return nil, err
	}

	tx, err := a.contract.Transact(opts, "createLock",
		[32]byte(req.LockID),
		common.HexToAddress(req.Recipient),
		[32]byte(req.SecretHash),
		big.NewInt(int64(req.Duration/time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("evm: createLock: %w", err)
	}

	a.log.Info("createLock submitted",
		"ledger", a.name, "lock_id", req.LockID.Hex(), "tx", tx.Hash().Hex(), "wei", wei)
	return a.handle(tx, req.LockID), nil
}

// Claim submits the secret. Reverts surface as transaction errors; the
// receipt status check in WaitForConfirmation catches reverts that only
// show up at execution time.
func (a *Adapter) Claim(ctx context.Context, id domain.LockID, secret domain.Secret) (*swap.Handle, error) {
	if len(secret) != domain.SecretSize {
		return nil, fmt.Errorf("%w: contract takes a 32-byte secret, got %d bytes",
			domain.ErrInvalidSecret, len(secret))
	}
	opts, err := a.txOpts(ctx, nil)
	if err != nil {
		return nil, err
	}

	var word [32]byte
	copy(word[:], secret)
	tx, err := a.contract.Transact(opts, "claim", [32]byte(id), word)
	if err != nil {
		return nil, fmt.Errorf("evm: claim: %w", err)
	}

	a.log.Info("claim submitted", "ledger", a.name, "lock_id", id.Hex(), "tx", tx.Hash().Hex())
	return a.handle(tx, id), nil
}

// Refund reclaims an expired lock for the depositor.
func (a *Adapter) Refund(ctx context.Context, id domain.LockID) (*swap.Handle, error) {
	opts, err := a.txOpts(ctx, nil)
	if err != nil {
		return nil, err
	}

	tx, err := a.contract.Transact(opts, "refund", [32]byte(id))
	if err != nil {
		return nil, fmt.Errorf("evm: refund: %w", err)
	}

	a.log.Info("refund submitted", "ledger", a.name, "lock_id", id.Hex(), "tx", tx.Hash().Hex())
	return a.handle(tx, id), nil
}

// GetLock reads the contract's lock record. A zero depositor address means
// the id was never created.
func (a *Adapter) GetLock(ctx context.Context, id domain.LockID) (*domain.Lock, error) {
	var out []interface{}
	err := a.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getLock", [32]byte(id))
	if err != nil {
		return nil, fmt.Errorf("evm: getLock: %w", err)
	}

	depositor := out[0].(common.Address)
	if depositor == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", domain.ErrLockNotFound, id.Hex())
	}
	recipient := out[1].(common.Address)
	amount := out[2].(*big.Int)
	secretHash := out[3].([32]byte)
	deadline := out[4].(*big.Int)
	claimed := out[5].(bool)
	refunded := out[6].(bool)

	status := domain.LockStatusLocked
	switch {
	case claimed:
		status = domain.LockStatusClaimed
	case refunded:
		status = domain.LockStatusRefunded
	}

	return &domain.Lock{
		ID:          id,
		Depositor:   depositor.Hex(),
		Recipient:   recipient.Hex(),
		RefundParty: depositor.Hex(),
		Amount:      amount.Uint64(),
		SecretHash:  domain.SecretHash(secretHash),
		Deadline:    time.Unix(deadline.Int64(), 0),
		Status:      status,
	}, nil
}

// SubscribeEvents streams the contract's Locked/Claimed/Refunded logs,
// optionally narrowed to one lock id via the indexed topic. The endpoint
// must support log subscriptions (websocket transport).
func (a *Adapter) SubscribeEvents(ctx context.Context, filter swap.EventFilter) (<-chan swap.Event, <-chan error, error) {
	var query [][]interface{}
	if filter.LockID != nil {
		query = [][]interface{}{{[32]byte(*filter.LockID)}}
	}

	watchOpts := &bind.WatchOpts{Context: ctx}
	names := []string{"Locked", "Claimed", "Refunded"}

	events := make(chan swap.Event, 16)
	errs := make(chan error, 1)
	subErrs := make(chan error, len(names))

	logCh := make(chan types.Log, 16)
	var subs []event.Subscription
	for _, name := range names {
		raw, sub, err := a.contract.WatchLogs(watchOpts, name, query...)
		if err != nil {
			for _, s := range subs {
				s.Unsubscribe()
			}
			return nil, nil, fmt.Errorf("evm: watch %s: %w", name, err)
		}
		subs = append(subs, sub)
		go func(src chan types.Log, sub event.Subscription) {
			for {
				select {
				case <-ctx.Done():
					return
				case err := <-sub.Err():
					if err != nil {
						subErrs <- err
					}
					return
				case lg := <-src:
					select {
					case logCh <- lg:
					case <-ctx.Done():
						return
					}
				}
			}
		}(raw, sub)
	}

	go func() {
		defer func() {
			for _, s := range subs {
				s.Unsubscribe()
			}
			close(events)
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-subErrs:
				errs <- fmt.Errorf("evm: log subscription: %w", err)
				return
			case lg := <-logCh:
				if ev, ok := a.decodeLog(lg); ok {
					events <- ev
				}
			}
		}
	}()
	return events, errs, nil
}

// decodeLog maps a raw contract log to the port's event type. The lock id
// is the indexed topic; only the data section goes through the ABI decoder,
// so the payload structs carry the non-indexed inputs exclusively.
func (a *Adapter) decodeLog(lg types.Log) (swap.Event, bool) {
	if len(lg.Topics) < 2 {
		return swap.Event{}, false
	}
	var id domain.LockID
	copy(id[:], lg.Topics[1].Bytes())
	ev := swap.Event{LockID: id, At: time.Now()}

	switch lg.Topics[0] {
	case htlcABI.Events["Locked"].ID:
		var payload struct {
			Depositor  common.Address
			Recipient  common.Address
			Amount     *big.Int
			SecretHash [32]byte
			Deadline   *big.Int
		}
		if err := htlcABI.UnpackIntoInterface(&payload, "Locked", lg.Data); err != nil {
			a.log.Warn("undecodable Locked log", "err", err)
			return swap.Event{}, false
		}
		ev.Type = swap.EventLockCreated
		ev.Amount = payload.Amount.Uint64()
	case htlcABI.Events["Claimed"].ID:
		var payload struct {
			Secret [32]byte
		}
		if err := htlcABI.UnpackIntoInterface(&payload, "Claimed", lg.Data); err != nil {
			a.log.Warn("undecodable Claimed log", "err", err)
			return swap.Event{}, false
		}
		ev.Type = swap.EventLockClaimed
		ev.Secret = domain.Secret(payload.Secret[:])
	case htlcABI.Events["Refunded"].ID:
		ev.Type = swap.EventLockRefunded
	default:
		return swap.Event{}, false
	}
	return ev, true
}

// WaitForConfirmation polls the receipt until the transaction is buried
// under the required number of blocks. A reverted receipt is terminal.
func (a *Adapter) WaitForConfirmation(ctx context.Context, h *swap.Handle, policy swap.ConfirmationPolicy) error {
	txHash := common.HexToHash(h.TxID)
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
		receipt, err := a.client.TransactionReceipt(waitCtx, txHash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("evm: tx %s reverted", h.TxID)
			}
			head, err := a.client.BlockNumber(waitCtx)
			if err == nil {
				confs := int(int64(head)-receipt.BlockNumber.Int64()) + 1
				if confs >= policy.MinConfirmations {
					a.log.Info("confirmed",
						"ledger", a.name, "tx", h.TxID, "confirmations", confs)
					return nil
				}
			}
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("evm: tx %s unconfirmed: %w", h.TxID, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (a *Adapter) handle(tx *types.Transaction, id domain.LockID) *swap.Handle {
	return &swap.Handle{
		ID:        "evm_" + tx.Hash().Hex()[2:10],
		TxID:      tx.Hash().Hex(),
		LockID:    id,
		Submitted: time.Now(),
	}
}
