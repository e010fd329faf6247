package amount

import (
	"errors"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFromDecimalRoundTrip(t *testing.T) {
	tests := []struct {
		value    string
		decimals int32
		base     string
	}{
		{"0", 18, "0"},
		{"1", 18, "1000000000000000000"},
		{"0.00002", 18, "20000000000000"},
		{"0.000000000000000001", 18, "1"},
		{"123456789.123456789123456789", 18, "123456789123456789123456789"},
		{"10.5", 6, "10500000"},
		{"7", 0, "7"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			a, err := FromDecimal(tt.value, tt.decimals)
			require.NoError(t, err)
			require.Equal(t, tt.base, a.BaseUnits().String())

			want := decimal.RequireFromString(tt.value)
			require.True(t, want.Equal(a.Decimal()), "round trip %s != %s", a.Decimal(), want)
		})
	}
}

func TestFromDecimalTruncatesBeyondPrecision(t *testing.T) {
	a, err := FromDecimal("1.23456789", 4)
	require.NoError(t, err)
	require.Equal(t, "12345", a.BaseUnits().String())
	require.Equal(t, "1.2345", a.String())
}

func TestFromDecimalRejectsBadInput(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "-1", "1.2.3", "0x10"} {
		_, err := FromDecimal(in, 18)
		require.Error(t, err, in)
		require.True(t, errors.Is(err, ErrInvalidAmount), in)
	}
}

func TestBillionths(t *testing.T) {
	oneGwei, err := FromDecimal("1", 18)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000_000), oneGwei.Billionths())

	tiny, err := FromDecimal("0.00002", 18)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(20_000), tiny.Billionths())

	sixDecimals := FromBaseUnits(big.NewInt(5), 6)
	require.Equal(t, big.NewInt(5_000), sixDecimals.Billionths())

	nine := FromBaseUnits(big.NewInt(42), 9)
	require.Equal(t, big.NewInt(42), nine.Billionths())
}

func TestFromBaseUnitsCopiesInput(t *testing.T) {
	v := big.NewInt(100)
	a := FromBaseUnits(v, 18)
	v.SetInt64(1)
	require.Equal(t, "100", a.BaseUnits().String())

	out := a.BaseUnits()
	out.SetInt64(7)
	require.Equal(t, "100", a.BaseUnits().String())
}

func TestAddAndZero(t *testing.T) {
	var zero Amount
	require.True(t, zero.IsZero())
	require.Equal(t, "0", zero.BaseUnits().String())

	sum := FromUint64(3, 18).Add(FromUint64(4, 18))
	require.Equal(t, "7", sum.BaseUnits().String())
	require.False(t, sum.IsZero())
}
