// Command enderswap coordinates a cross-ledger HTLC atomic swap: it locks
// both sides behind one secret hash, reveals the secret by claiming the
// responder's lock, and completes the initiator's lock with it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/arcceus/enderswap/adapters/evm"
	"github.com/arcceus/enderswap/adapters/lightning"
	"github.com/arcceus/enderswap/adapters/memory"
	"github.com/arcceus/enderswap/adapters/objectledger"
	"github.com/arcceus/enderswap/clients/lnd"
	"github.com/arcceus/enderswap/domain"
	"github.com/arcceus/enderswap/htlc"
	"github.com/arcceus/enderswap/internal/config"
	"github.com/arcceus/enderswap/swap"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "enderswap",
		Short:         "Cross-ledger HTLC atomic swap coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newDemoCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the enderswap version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("enderswap", version)
		},
	}
}

func newRunCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one swap against the configured ledgers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return runSwap(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func runSwap(ctx context.Context, cfg *config.Config) error {
	ledgerA, err := buildLedger(cfg.LedgerA)
	if err != nil {
		return fmt.Errorf("ledger A: %w", err)
	}
	ledgerB, err := buildLedger(cfg.LedgerB)
	if err != nil {
		return fmt.Errorf("ledger B: %w", err)
	}

	amountA, err := decimal.NewFromString(cfg.Swap.AmountA)
	if err != nil {
		return fmt.Errorf("amount_a: %w", err)
	}
	amountB, err := decimal.NewFromString(cfg.Swap.AmountB)
	if err != nil {
		return fmt.Errorf("amount_b: %w", err)
	}

	// One operator drives both roles here, so each ledger's single
	// credential set serves both parties. Separate-party deployments
	// embed the orchestrator and watcher in their own processes instead.
	orch, err := swap.NewOrchestrator(swap.OrchestratorConfig{
		Initiator: swap.Party{OnA: ledgerA, OnB: ledgerB},
		Responder: swap.Party{OnA: ledgerA, OnB: ledgerB},
		Confirm: swap.ConfirmationPolicy{
			MinConfirmations: cfg.Swap.MinConfirmations,
			Timeout:          cfg.Swap.ConfirmTimeout,
			PollInterval:     cfg.Swap.PollInterval,
		},
		WaitForRefundWindow: false,
	})
	if err != nil {
		return err
	}

	sw, err := orch.Run(ctx, swap.SwapParams{
		AmountA:       amountA,
		AmountB:       amountB,
		RecipientOnA:  cfg.Swap.RecipientOnA,
		RecipientOnB:  cfg.Swap.RecipientOnB,
		RefundPartyA:  cfg.Swap.RefundPartyA,
		RefundPartyB:  cfg.Swap.RefundPartyB,
		LongTimelock:  cfg.Swap.LongTimelock,
		ShortTimelock: cfg.Swap.ShortTimelock,
	})
	if sw != nil {
		fmt.Printf("swap %s finished in state %s\n", sw.ID, sw.State)
	}
	return err
}

// buildLedger constructs the adapter a ledger config selects.
func buildLedger(cfg config.LedgerConfig) (swap.Ledger, error) {
	algo := domain.HashAlgo(cfg.HashAlgo)
	switch cfg.Kind {
	case "evm":
		return evm.New(evm.Config{
			Name:       cfg.Name,
			RPCURL:     cfg.RPCURL,
			Contract:   cfg.Contract,
			PrivateKey: cfg.PrivateKey,
			ChainID:    cfg.ChainID,
			HashAlgo:   algo,
		}, slog.Default())
	case "objectledger":
		return objectledger.New(objectledger.Config{
			Name:        cfg.Name,
			RPCEndpoint: cfg.RPCURL,
			WSEndpoint:  cfg.WSEndpoint,
			AuthToken:   cfg.AuthToken,
			Account:     cfg.Account,
			AssetType:   cfg.AssetType,
			Denomination: domain.Denomination{
				Ticker:   cfg.Ticker,
				Decimals: cfg.Decimals,
			},
			HashAlgo: algo,
		}, slog.Default()), nil
	case "lightning":
		client, err := lnd.NewClient(lnd.Config{
			Host:         cfg.Host,
			TLSCertPath:  cfg.TLSCertPath,
			MacaroonPath: cfg.MacaroonPath,
		})
		if err != nil {
			return nil, err
		}
		return lightning.New(cfg.Name, client, cfg.Account, slog.Default()), nil
	default:
		return nil, fmt.Errorf("unknown ledger kind %q", cfg.Kind)
	}
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run a full swap across two in-process ledgers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context())
		},
	}
}

// runDemo executes the happy path: 1.0 ALP locked for 0.5 BRV, both locks
// claimed through one secret.
func runDemo(ctx context.Context) error {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)

	chainA := memory.NewChain(memory.ChainConfig{
		Name:         "chain-a",
		Denomination: domain.Denomination{Ticker: "ALP", Decimals: 9},
		HashAlgo:     domain.HashSHA256,
		Policy:       htlc.StrictPolicy(),
		ConfirmDelay: 200 * time.Millisecond,
	})
	chainB := memory.NewChain(memory.ChainConfig{
		Name:         "chain-b",
		Denomination: domain.Denomination{Ticker: "BRV", Decimals: 6},
		HashAlgo:     domain.HashSHA256,
		Policy:       htlc.PermissivePolicy(),
		ConfirmDelay: 200 * time.Millisecond,
	})

	const (
		alice = "alice" // initiator: holds ALP on chain A
		bob   = "bob"   // responder: holds BRV on chain B
	)
	chainA.Fund(alice, 2_000_000_000) // 2.0 ALP
	chainB.Fund(bob, 1_000_000)       // 1.0 BRV

	orch, err := swap.NewOrchestrator(swap.OrchestratorConfig{
		Initiator: swap.Party{OnA: chainA.Bind(alice), OnB: chainB.Bind(alice)},
		Responder: swap.Party{OnA: chainA.Bind(bob), OnB: chainB.Bind(bob)},
		Confirm: swap.ConfirmationPolicy{
			MinConfirmations: 1,
			Timeout:          5 * time.Second,
			PollInterval:     50 * time.Millisecond,
		},
	})
	if err != nil {
		return err
	}

	bold.Println("Swapping 1.0 ALP (chain-a) for 0.5 BRV (chain-b)...")
	sw, err := orch.Run(ctx, swap.SwapParams{
		AmountA:       decimal.RequireFromString("1.0"),
		AmountB:       decimal.RequireFromString("0.5"),
		RecipientOnA:  bob,
		RecipientOnB:  alice,
		LongTimelock:  48 * time.Hour,
		ShortTimelock: 24 * time.Hour,
	})
	if err != nil {
		return err
	}

	ok.Printf("Swap %s: %s\n", sw.ID, sw.State)
	denomA := domain.Denomination{Ticker: "ALP", Decimals: 9}
	denomB := domain.Denomination{Ticker: "BRV", Decimals: 6}
	fmt.Printf("  alice: %s ALP, %s BRV\n",
		denomA.FromBase(chainA.Balance(alice)), denomB.FromBase(chainB.Balance(alice)))
	fmt.Printf("  bob:   %s ALP, %s BRV\n",
		denomA.FromBase(chainA.Balance(bob)), denomB.FromBase(chainB.Balance(bob)))
	return nil
}
