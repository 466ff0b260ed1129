package domain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Denomination describes how a ledger counts its native asset.
// This is strictly identity metadata — it does NOT carry quantity/balance.
type Denomination struct {
	Ticker   string // e.g. "ETH", "OBJ", "BTC"
	Decimals int32  // base units per whole unit, as a power of ten
}

// ToBase converts a human-denominated amount into the ledger's smallest
// unit. The amount must be positive and must not lose precision.
func (d Denomination) ToBase(amount decimal.Decimal) (uint64, error) {
	shifted := amount.Shift(d.Decimals)
	if !shifted.IsPositive() {
		return 0, fmt.Errorf("%w: %s %s", ErrInvalidAmount, amount, d.Ticker)
	}
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s %s is below the ledger's base unit", amount, d.Ticker)
	}
	base := shifted.BigInt()
	if !base.IsUint64() {
		return 0, fmt.Errorf("amount %s %s overflows base units", amount, d.Ticker)
	}
	return base.Uint64(), nil
}

// FromBase converts base units back to the human denomination.
func (d Denomination) FromBase(base uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(base), -d.Decimals)
}
