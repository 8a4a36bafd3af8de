package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSameCurrency(t *testing.T) {
	a := New(100000, INR)
	b := New(50000, INR)

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), sum.AmountMinor)
	assert.Equal(t, INR, sum.Currency)
}

func TestAddCurrencyMismatch(t *testing.T) {
	a := New(100, INR)
	b := New(100, USD)

	_, err := a.Add(b)
	require.Error(t, err)

	_, err = a.Sub(b)
	require.Error(t, err)

	_, err = a.Compare(b)
	require.Error(t, err)
}

func TestPercentageBps(t *testing.T) {
	tests := []struct {
		name   string
		amount int64
		bps    int64
		want   int64
	}{
		{"five percent of 1000 rupees", 100000, 500, 5000},
		{"eighteen percent of 50 rupees", 5000, 1800, 900},
		{"rounds half up", 999, 500, 50},   // 49.95
		{"rounds half down", 989, 500, 49}, // 49.45
		{"zero amount", 0, 500, 0},
		{"zero bps", 100000, 0, 0},
		{"negative rounds away from zero", -999, 500, -50},
		{"full amount", 100000, 10000, 100000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New(tt.amount, INR).PercentageBps(tt.bps)
			assert.Equal(t, tt.want, got.AmountMinor)
			assert.Equal(t, INR, got.Currency)
		})
	}
}

func TestCompare(t *testing.T) {
	a := New(100, INR)
	b := New(200, INR)

	cmp, err := a.Compare(b)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = b.Compare(a)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = a.Compare(a)
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)
}

func TestString(t *testing.T) {
	assert.Equal(t, "₹1000.00", New(100000, INR).String())
	assert.Equal(t, "₹0.05", New(5, INR).String())
	assert.Equal(t, "-₹12.34", New(-1234, INR).String())
	assert.Equal(t, "$1.00", New(100, USD).String())
}

func TestSum(t *testing.T) {
	total, err := Sum(New(5000, INR), New(900, INR), New(94100, INR))
	require.NoError(t, err)
	assert.Equal(t, New(100000, INR), total)

	_, err = Sum(New(100, INR), New(100, EUR))
	require.Error(t, err)

	empty, err := Sum()
	require.NoError(t, err)
	assert.True(t, empty.IsZero())
}
