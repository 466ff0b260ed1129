package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBase(t *testing.T) {
	gwei := Denomination{Ticker: "ETH", Decimals: 9}

	tests := []struct {
		name    string
		amount  string
		want    uint64
		wantErr bool
	}{
		{name: "whole", amount: "2", want: 2_000_000_000},
		{name: "fractional", amount: "0.5", want: 500_000_000},
		{name: "smallest unit", amount: "0.000000001", want: 1},
		{name: "zero", amount: "0", wantErr: true},
		{name: "negative", amount: "-1", wantErr: true},
		{name: "below base unit", amount: "0.0000000005", wantErr: true},
		{name: "overflows uint64", amount: "99999999999.999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := gwei.ToBase(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromBaseRoundTrip(t *testing.T) {
	sat := Denomination{Ticker: "BTC", Decimals: 8}

	amount := decimal.RequireFromString("0.12345678")
	base, err := sat.ToBase(amount)
	require.NoError(t, err)
	assert.Equal(t, uint64(12_345_678), base)
	assert.True(t, amount.Equal(sat.FromBase(base)))
}
