package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staypay/internal/booking"
	"staypay/internal/common/money"
)

func testBooking() booking.Context {
	return booking.Context{
		PropertyID:     "prop_01",
		RoomType:       booking.RoomDouble,
		RoomIDs:        []string{"room_12"},
		MoveInDate:     time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		DurationMonths: 3,
		Occupants:      2,
		PrimaryContact: booking.Contact{
			Name:  "Asha Rao",
			Email: "asha@example.com",
			Phone: "9876543210",
		},
	}
}

func TestNewAttempt(t *testing.T) {
	a, err := NewAttempt(testBooking(), money.New(100000, money.INR))
	require.NoError(t, err)

	assert.Equal(t, StatusCreatingOrder, a.Status)
	assert.NotEmpty(t, a.ID)
	assert.True(t, len(a.ReceiptID) > len("rcpt_"))
	assert.False(t, a.IsTerminal())
}

func TestNewAttemptRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewAttempt(testBooking(), money.Zero(money.INR))
	require.Error(t, err)

	_, err = NewAttempt(testBooking(), money.New(-100, money.INR))
	require.Error(t, err)
}

func TestNewAttemptRejectsInvalidBooking(t *testing.T) {
	bctx := testBooking()
	bctx.DurationMonths = 0

	_, err := NewAttempt(bctx, money.New(100, money.INR))
	require.ErrorIs(t, err, booking.ErrNoDuration)
}

func TestReceiptIDsAreUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewReceiptID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate receipt %s", id)
		seen[id] = struct{}{}
	}
}

func TestHappyPathTransitions(t *testing.T) {
	a, err := NewAttempt(testBooking(), money.New(100000, money.INR))
	require.NoError(t, err)

	require.NoError(t, a.MarkAwaitingGateway("order_1"))
	assert.Equal(t, StatusAwaitingGateway, a.Status)
	assert.Equal(t, "order_1", a.OrderID)

	require.NoError(t, a.MarkValidating("pay_1"))
	assert.Equal(t, StatusValidating, a.Status)

	require.NoError(t, a.MarkSucceeded("bkng_1"))
	assert.Equal(t, StatusSucceeded, a.Status)
	assert.Equal(t, "bkng_1", a.BookingRef)
	assert.True(t, a.IsTerminal())
	require.NotNil(t, a.CompletedAt)
}

func TestTransitionGuards(t *testing.T) {
	a, err := NewAttempt(testBooking(), money.New(100000, money.INR))
	require.NoError(t, err)

	// Cannot skip stages.
	require.Error(t, a.MarkValidating("pay_1"))
	require.Error(t, a.MarkSucceeded("bkng_1"))
	require.Error(t, a.MarkCancelled())

	require.NoError(t, a.MarkAwaitingGateway("order_1"))
	require.Error(t, a.MarkAwaitingGateway("order_2"))
	require.NoError(t, a.MarkCancelled())

	// Terminal states are frozen.
	require.Error(t, a.MarkValidating("pay_1"))
	require.Error(t, a.MarkFailed(KindGateway, "late failure"))
}

func TestMarkFailedFromAnyLiveStage(t *testing.T) {
	a, err := NewAttempt(testBooking(), money.New(100000, money.INR))
	require.NoError(t, err)

	require.NoError(t, a.MarkFailed(KindOrderCreation, "backend said no"))
	assert.Equal(t, StatusFailed, a.Status)
	assert.Equal(t, KindOrderCreation, a.ErrorKind)
	assert.Equal(t, "backend said no", a.ErrorMessage)
	assert.True(t, a.IsTerminal())
}
