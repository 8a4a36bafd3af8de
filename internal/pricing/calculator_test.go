package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staypay/internal/common/money"
)

func defaultCalculator() *Calculator {
	return NewCalculator(Config{PlatformFeeBps: 500, GSTBps: 1800})
}

func TestComputeBreakdown(t *testing.T) {
	b := defaultCalculator().Compute(money.New(100000, money.INR))

	assert.Equal(t, int64(100000), b.TotalPayment.AmountMinor)
	assert.Equal(t, int64(5000), b.PlatformFee.AmountMinor)
	assert.Equal(t, int64(900), b.GSTOnPlatformFee.AmountMinor)
	assert.Equal(t, int64(94100), b.AmountToOwner.AmountMinor)
}

func TestComputeSumInvariant(t *testing.T) {
	// Amounts chosen to force rounding in both percentage steps.
	amounts := []int64{1, 3, 99, 101, 999, 1001, 4999, 12345, 99999, 100001, 7777777}

	calc := defaultCalculator()
	for _, amount := range amounts {
		b := calc.Compute(money.New(amount, money.INR))

		sum := b.PlatformFee.MustAdd(b.GSTOnPlatformFee).MustAdd(b.AmountToOwner)
		assert.Equal(t, b.TotalPayment, sum, "amount %d", amount)
		require.NoError(t, Verify(b))
	}
}

func TestComputeRounding(t *testing.T) {
	// 999 paise: fee 49.95 -> 50, GST on 50 is 9; owner gets the rest.
	b := defaultCalculator().Compute(money.New(999, money.INR))

	assert.Equal(t, int64(50), b.PlatformFee.AmountMinor)
	assert.Equal(t, int64(9), b.GSTOnPlatformFee.AmountMinor)
	assert.Equal(t, int64(940), b.AmountToOwner.AmountMinor)
}

func TestVerifyRejectsTamperedBreakdown(t *testing.T) {
	b := defaultCalculator().Compute(money.New(100000, money.INR))
	b.AmountToOwner = money.New(b.AmountToOwner.AmountMinor+1, money.INR)

	require.Error(t, Verify(b))
}

func TestComputeRecordsConfiguredBps(t *testing.T) {
	calc := NewCalculator(Config{PlatformFeeBps: 250, GSTBps: 1200})
	b := calc.Compute(money.New(10000, money.INR))

	assert.Equal(t, int64(250), b.PlatformFeeBps)
	assert.Equal(t, int64(1200), b.GSTBps)
	assert.Equal(t, int64(250), b.PlatformFee.AmountMinor)
	assert.Equal(t, int64(30), b.GSTOnPlatformFee.AmountMinor)
}
