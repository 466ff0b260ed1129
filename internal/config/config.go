// Package config loads enderswap configuration: ledger endpoints and
// credentials per side, swap amounts, and the timelock/confirmation policy.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete enderswap configuration.
type Config struct {
	Swap    SwapConfig   `mapstructure:"swap"`
	LedgerA LedgerConfig `mapstructure:"ledger_a"`
	LedgerB LedgerConfig `mapstructure:"ledger_b"`
}

// SwapConfig sets the exchange parameters and wait budgets.
type SwapConfig struct {
	// AmountA is locked by the initiator on ledger A; AmountB by the
	// responder on ledger B. Human-denominated decimal strings.
	AmountA string `mapstructure:"amount_a"`
	AmountB string `mapstructure:"amount_b"`

	// RecipientOnA is the responder's address on ledger A; RecipientOnB
	// the initiator's on ledger B.
	RecipientOnA string `mapstructure:"recipient_on_a"`
	RecipientOnB string `mapstructure:"recipient_on_b"`

	// Optional distinct refund destinations.
	RefundPartyA string `mapstructure:"refund_party_a"`
	RefundPartyB string `mapstructure:"refund_party_b"`

	// LongTimelock guards the initiator's lock, ShortTimelock the
	// responder's. Long must exceed short.
	LongTimelock  time.Duration `mapstructure:"long_timelock"`
	ShortTimelock time.Duration `mapstructure:"short_timelock"`

	MinConfirmations int           `mapstructure:"min_confirmations"`
	ConfirmTimeout   time.Duration `mapstructure:"confirm_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
}

// LedgerConfig describes one side's ledger and this party's credentials on
// it. Which fields apply depends on Kind.
type LedgerConfig struct {
	// Kind selects the adapter: "evm", "objectledger" or "lightning".
	Kind string `mapstructure:"kind"`
	Name string `mapstructure:"name"`

	// HashAlgo the deployed lock contract/package verifies with:
	// "sha256" or "keccak256". Both ledgers must agree.
	HashAlgo string `mapstructure:"hash_algo"`

	// EVM.
	RPCURL     string `mapstructure:"rpc_url"`
	Contract   string `mapstructure:"contract"`
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int64  `mapstructure:"chain_id"`

	// Object ledger.
	WSEndpoint string `mapstructure:"ws_endpoint"`
	AuthToken  string `mapstructure:"auth_token"`
	Account    string `mapstructure:"account"`
	AssetType  string `mapstructure:"asset_type"`
	Ticker     string `mapstructure:"ticker"`
	Decimals   int32  `mapstructure:"decimals"`

	// Lightning.
	Host         string `mapstructure:"host"`
	TLSCertPath  string `mapstructure:"tls_cert_path"`
	MacaroonPath string `mapstructure:"macaroon_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("swap.long_timelock", 48*time.Hour)
	v.SetDefault("swap.short_timelock", 24*time.Hour)
	v.SetDefault("swap.min_confirmations", 1)
	v.SetDefault("swap.confirm_timeout", 10*time.Minute)
	v.SetDefault("swap.poll_interval", 2*time.Second)
	v.SetDefault("ledger_a.hash_algo", "sha256")
	v.SetDefault("ledger_b.hash_algo", "sha256")
}

// Load reads the config file (path may be empty to rely on defaults plus
// environment) and environment variables prefixed ENDERSWAP_.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("enderswap")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Swap.LongTimelock <= cfg.Swap.ShortTimelock {
		return nil, fmt.Errorf("config: long_timelock (%s) must exceed short_timelock (%s)",
			cfg.Swap.LongTimelock, cfg.Swap.ShortTimelock)
	}
	return &cfg, nil
}
