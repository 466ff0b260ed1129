package objectledger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcceus/enderswap/domain"
	"github.com/arcceus/enderswap/swap"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

// fakeNode serves the htlc_* JSON-RPC surface from canned results and
// records what the adapter sent.
type fakeNode struct {
	t *testing.T

	mu      sync.Mutex
	results map[string]interface{}
	calls   []rpcRequest
	tokens  []string
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	n := &fakeNode{t: t, results: make(map[string]interface{})}
	srv := httptest.NewServer(http.HandlerFunc(n.handle))
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) handle(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	require.NoError(n.t, json.NewDecoder(r.Body).Decode(&req))

	n.mu.Lock()
	n.calls = append(n.calls, req)
	n.tokens = append(n.tokens, r.Header.Get("Authorization"))
	result, ok := n.results[req.Method]
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found"}
	} else {
		resp["result"] = result
	}
	require.NoError(n.t, json.NewEncoder(w).Encode(resp))
}

func (n *fakeNode) set(method string, result interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.results[method] = result
}

func (n *fakeNode) lastCall(method string) (rpcRequest, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.calls) - 1; i >= 0; i-- {
		if n.calls[i].Method == method {
			return n.calls[i], true
		}
	}
	return rpcRequest{}, false
}

func newTestAdapter(t *testing.T, endpoint string) *Adapter {
	return New(Config{
		Name:         "objnet",
		RPCEndpoint:  endpoint,
		AuthToken:    "sekrit",
		Account:      "alice@objnet",
		AssetType:    "0x2::coin::NATIVE",
		Denomination: domain.Denomination{Ticker: "OBJ", Decimals: 9},
		HashAlgo:     domain.HashSHA256,
	}, nil)
}

func newLock(t *testing.T) (domain.LockID, domain.Secret, domain.SecretHash) {
	t.Helper()
	secret, err := domain.NewSecret()
	require.NoError(t, err)
	hash, err := domain.HashSHA256.Digest(secret)
	require.NoError(t, err)
	return domain.DeriveLockID(hash), secret, hash
}

func TestCreateLockScalesAndRemembersObject(t *testing.T) {
	node, srv := newFakeNode(t)
	a := newTestAdapter(t, srv.URL)
	id, secret, hash := newLock(t)

	node.set("htlc_createLock", txResult{LockObjectID: "0xobj1", TxDigest: "0xd1"})
	h, err := a.CreateLock(context.Background(), swap.CreateLockRequest{
		LockID:     id,
		Recipient:  "bob@objnet",
		Amount:     mustDec(t, "1.25"),
		SecretHash: hash,
		SecretLen:  domain.SecretSize,
		Duration:   24 * time.Hour,
	})
	require.NoError(t, err)
	assert.Equal(t, "0xd1", h.TxID)
	assert.Equal(t, id, h.LockID)

	call, ok := node.lastCall("htlc_createLock")
	require.True(t, ok)
	params := call.Params.([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "1250000000", params["amount"], "base units as string")
	assert.Equal(t, hash.Hex(), params["secretHash"])
	assert.EqualValues(t, 24*60*60*1000, params["durationMs"])

	node.mu.Lock()
	assert.Equal(t, "Bearer sekrit", node.tokens[0])
	node.mu.Unlock()

	// Claim reuses the remembered object id without a lookup round trip.
	node.set("htlc_claim", txResult{TxDigest: "0xd2"})
	_, err = a.Claim(context.Background(), id, secret)
	require.NoError(t, err)
	claimCall, ok := node.lastCall("htlc_claim")
	require.True(t, ok)
	claimParams := claimCall.Params.([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "0xobj1", claimParams["lockObjectId"])
	_, looked := node.lastCall("htlc_getLock")
	assert.False(t, looked)
}

func TestGetLockMapsWireFormat(t *testing.T) {
	node, srv := newFakeNode(t)
	a := newTestAdapter(t, srv.URL)
	id, _, hash := newLock(t)

	deadline := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	node.set("htlc_getLock", wireLock{
		LockObjectID: "0xobj9",
		Initiator:    "alice@objnet",
		Target:       "bob@objnet",
		RefundParty:  "alice@objnet",
		Amount:       1_250_000_000,
		SecretHash:   hash.Hex(),
		SecretLength: 32,
		DeadlineMs:   deadline.UnixMilli(),
		Status:       "locked",
	})

	lock, err := a.GetLock(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice@objnet", lock.Depositor)
	assert.Equal(t, "bob@objnet", lock.Recipient)
	assert.Equal(t, uint64(1_250_000_000), lock.Amount)
	assert.Equal(t, hash, lock.SecretHash)
	assert.Equal(t, 32, lock.SecretLen)
	assert.Equal(t, domain.LockStatusLocked, lock.Status)
	assert.True(t, lock.Deadline.Equal(deadline))

	// Refund resolves the object id learned from the query.
	node.set("htlc_refund", txResult{TxDigest: "0xd3"})
	_, err = a.Refund(context.Background(), id)
	require.NoError(t, err)
	call, ok := node.lastCall("htlc_refund")
	require.True(t, ok)
	params := call.Params.([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "0xobj9", params["lockObjectId"])
}

func TestGetLockNotFound(t *testing.T) {
	node, srv := newFakeNode(t)
	a := newTestAdapter(t, srv.URL)
	id, _, _ := newLock(t)

	node.set("htlc_getLock", nil)
	_, err := a.GetLock(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrLockNotFound)
}

func TestWaitForConfirmation(t *testing.T) {
	node, srv := newFakeNode(t)
	a := newTestAdapter(t, srv.URL)
	id, _, _ := newLock(t)
	h := a.handle("0xdeep", id)

	policy := swap.ConfirmationPolicy{
		MinConfirmations: 2,
		Timeout:          time.Second,
		PollInterval:     10 * time.Millisecond,
	}

	node.set("htlc_getTransactionStatus", map[string]interface{}{
		"status": "confirmed", "checkpoints": 3,
	})
	assert.NoError(t, a.WaitForConfirmation(context.Background(), h, policy))

	node.set("htlc_getTransactionStatus", map[string]interface{}{
		"status": "failed",
	})
	assert.Error(t, a.WaitForConfirmation(context.Background(), h, policy))

	node.set("htlc_getTransactionStatus", map[string]interface{}{
		"status": "pending",
	})
	policy.Timeout = 50 * time.Millisecond
	assert.Error(t, a.WaitForConfirmation(context.Background(), h, policy))
}
