package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "enderswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Swap.LongTimelock)
	assert.Equal(t, 24*time.Hour, cfg.Swap.ShortTimelock)
	assert.Equal(t, 1, cfg.Swap.MinConfirmations)
	assert.Equal(t, 10*time.Minute, cfg.Swap.ConfirmTimeout)
	assert.Equal(t, "sha256", cfg.LedgerA.HashAlgo)
	assert.Equal(t, "sha256", cfg.LedgerB.HashAlgo)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
swap:
  amount_a: "1.5"
  amount_b: "0.75"
  recipient_on_a: "0xbob"
  recipient_on_b: "alice@objnet"
  long_timelock: 72h
  short_timelock: 36h
ledger_a:
  kind: evm
  name: sepolia
  hash_algo: keccak256
  rpc_url: wss://sepolia.example/ws
  contract: "0x00000000000000000000000000000000deadbeef"
  chain_id: 11155111
ledger_b:
  kind: objectledger
  name: objnet
  rpc_url: https://objnet.example/rpc
  ws_endpoint: wss://objnet.example/stream
  account: alice@objnet
  ticker: OBJ
  decimals: 9
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "1.5", cfg.Swap.AmountA)
	assert.Equal(t, 72*time.Hour, cfg.Swap.LongTimelock)
	assert.Equal(t, 36*time.Hour, cfg.Swap.ShortTimelock)
	assert.Equal(t, "evm", cfg.LedgerA.Kind)
	assert.Equal(t, "keccak256", cfg.LedgerA.HashAlgo)
	assert.Equal(t, int64(11155111), cfg.LedgerA.ChainID)
	assert.Equal(t, "objectledger", cfg.LedgerB.Kind)
	assert.Equal(t, int32(9), cfg.LedgerB.Decimals)
	assert.Equal(t, "sha256", cfg.LedgerB.HashAlgo, "default survives partial file")
}

func TestLoadRejectsBadTimelockOrdering(t *testing.T) {
	path := writeConfig(t, `
swap:
  long_timelock: 12h
  short_timelock: 24h
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
