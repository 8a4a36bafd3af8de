// Package pricing computes the payable amount and fee breakdown for a
// booking.
package pricing

import (
	"fmt"

	"staypay/internal/common/money"
)

// Config holds the platform fee percentages in basis points.
// These are operator configuration, never user input.
type Config struct {
	PlatformFeeBps int64 `envconfig:"PRICING_PLATFORM_FEE_BPS" default:"500"`
	GSTBps         int64 `envconfig:"PRICING_GST_BPS" default:"1800"`
}

// Breakdown is the derived fee split for a payment. It is computed on
// demand and never persisted.
type Breakdown struct {
	TotalPayment     money.Money `json:"total_payment"`
	PlatformFeeBps   int64       `json:"platform_fee_bps"`
	GSTBps           int64       `json:"gst_bps"`
	PlatformFee      money.Money `json:"platform_fee"`
	GSTOnPlatformFee money.Money `json:"gst_on_platform_fee"`
	AmountToOwner    money.Money `json:"amount_to_owner"`
}

// Calculator computes pricing breakdowns from configured percentages.
type Calculator struct {
	cfg Config
}

// NewCalculator creates a calculator with the given fee configuration.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// Compute derives the fee breakdown for a room rate. Pure and total:
// all arithmetic is in integer minor units, and the owner payout is
// defined as the remainder, so the parts always sum exactly to the
// total.
func (c *Calculator) Compute(ratePerUnit money.Money) Breakdown {
	total := ratePerUnit
	platformFee := total.PercentageBps(c.cfg.PlatformFeeBps)
	gstOnFee := platformFee.PercentageBps(c.cfg.GSTBps)
	amountToOwner := total.MustSub(platformFee).MustSub(gstOnFee)

	return Breakdown{
		TotalPayment:     total,
		PlatformFeeBps:   c.cfg.PlatformFeeBps,
		GSTBps:           c.cfg.GSTBps,
		PlatformFee:      platformFee,
		GSTOnPlatformFee: gstOnFee,
		AmountToOwner:    amountToOwner,
	}
}

// Verify checks the breakdown sum invariant. Compute guarantees it by
// construction; Verify guards breakdowns that crossed a wire.
func Verify(b Breakdown) error {
	sum, err := money.Sum(b.PlatformFee, b.GSTOnPlatformFee, b.AmountToOwner)
	if err != nil {
		return err
	}
	if !sum.Equal(b.TotalPayment) {
		return fmt.Errorf("breakdown parts sum to %s, expected %s", sum, b.TotalPayment)
	}
	return nil
}
