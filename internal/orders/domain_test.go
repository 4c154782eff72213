package orders

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-logistics/meridian/internal/shared"
)

func TestPaymentStatusTransition(t *testing.T) {
	t.Run("forward moves allowed", func(t *testing.T) {
		next, err := PaymentAwaiting.Transition(PaymentPartiallyPaid)
		require.NoError(t, err)
		require.Equal(t, PaymentPartiallyPaid, next)

		next, err = PaymentPartiallyPaid.Transition(PaymentPaid)
		require.NoError(t, err)
		require.Equal(t, PaymentPaid, next)
	})

	t.Run("skip to paid allowed", func(t *testing.T) {
		next, err := PaymentAwaiting.Transition(PaymentPaid)
		require.NoError(t, err)
		require.Equal(t, PaymentPaid, next)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		next, err := PaymentPartiallyPaid.Transition(PaymentPartiallyPaid)
		require.NoError(t, err)
		require.Equal(t, PaymentPartiallyPaid, next)
	})

	t.Run("regression rejected", func(t *testing.T) {
		_, err := PaymentPaid.Transition(PaymentPartiallyPaid)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)

		_, err = PaymentPartiallyPaid.Transition(PaymentAwaiting)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("cancel only before paid", func(t *testing.T) {
		next, err := PaymentAwaiting.Transition(PaymentCancelled)
		require.NoError(t, err)
		require.Equal(t, PaymentCancelled, next)

		next, err = PaymentPartiallyPaid.Transition(PaymentCancelled)
		require.NoError(t, err)
		require.Equal(t, PaymentCancelled, next)

		_, err = PaymentPaid.Transition(PaymentCancelled)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("cancelled is terminal", func(t *testing.T) {
		_, err := PaymentCancelled.Transition(PaymentPaid)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
		_, err = PaymentCancelled.Transition(PaymentCancelled)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		_, err := PaymentAwaiting.Transition(PaymentStatus("SHIPPED"))
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})
}

func TestLogisticsStatusTransition(t *testing.T) {
	t.Run("strict order", func(t *testing.T) {
		next, err := LogisticsPendingPlanning.Transition(LogisticsReadyForCollection)
		require.NoError(t, err)
		require.Equal(t, LogisticsReadyForCollection, next)

		next, err = LogisticsReadyForCollection.Transition(LogisticsOutForDelivery)
		require.NoError(t, err)
		require.Equal(t, LogisticsOutForDelivery, next)

		next, err = LogisticsOutForDelivery.Transition(LogisticsDelivered)
		require.NoError(t, err)
		require.Equal(t, LogisticsDelivered, next)
	})

	t.Run("no skipping", func(t *testing.T) {
		_, err := LogisticsPendingPlanning.Transition(LogisticsOutForDelivery)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
		_, err = LogisticsPendingPlanning.Transition(LogisticsDelivered)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("no regression", func(t *testing.T) {
		_, err := LogisticsOutForDelivery.Transition(LogisticsReadyForCollection)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		next, err := LogisticsOutForDelivery.Transition(LogisticsOutForDelivery)
		require.NoError(t, err)
		require.Equal(t, LogisticsOutForDelivery, next)
	})

	t.Run("cancel from any non-terminal", func(t *testing.T) {
		for _, from := range []LogisticsStatus{LogisticsPendingPlanning, LogisticsReadyForCollection, LogisticsOutForDelivery} {
			next, err := from.Transition(LogisticsCancelled)
			require.NoError(t, err)
			require.Equal(t, LogisticsCancelled, next)
		}
	})

	t.Run("terminal states reject moves", func(t *testing.T) {
		_, err := LogisticsDelivered.Transition(LogisticsCancelled)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
		_, err = LogisticsCancelled.Transition(LogisticsReadyForCollection)
		require.ErrorIs(t, err, shared.ErrInvalidTransition)
	})
}

func TestPaymentGateUnlocked(t *testing.T) {
	t.Run("paid unlocks", func(t *testing.T) {
		gate := PaymentGate{Status: PaymentPaid, TotalAmount: 100, PaymentsNet: 100}
		require.True(t, gate.Unlocked())
	})

	t.Run("awaiting stays locked", func(t *testing.T) {
		gate := PaymentGate{Status: PaymentAwaiting, TotalAmount: 100}
		require.False(t, gate.Unlocked())
	})

	t.Run("partial without arrangement stays locked", func(t *testing.T) {
		gate := PaymentGate{Status: PaymentPartiallyPaid, TotalAmount: 100, PaymentsNet: 60}
		require.False(t, gate.Unlocked())
	})

	t.Run("partial with loan cover unlocks", func(t *testing.T) {
		gate := PaymentGate{
			Status:        PaymentPartiallyPaid,
			TotalAmount:   100,
			PaymentsNet:   60,
			LoanDisbursed: 40,
			AllowPartial:  true,
		}
		require.True(t, gate.Unlocked())
	})

	t.Run("partial with short loan stays locked", func(t *testing.T) {
		gate := PaymentGate{
			Status:        PaymentPartiallyPaid,
			TotalAmount:   100,
			PaymentsNet:   60,
			LoanDisbursed: 20,
			AllowPartial:  true,
		}
		require.False(t, gate.Unlocked())
	})

	t.Run("loan alone never covers the whole gap", func(t *testing.T) {
		gate := PaymentGate{
			Status:        PaymentPartiallyPaid,
			TotalAmount:   100,
			LoanDisbursed: 50,
			AllowPartial:  true,
		}
		require.False(t, gate.Unlocked())
	})

	t.Run("cancelled stays locked", func(t *testing.T) {
		gate := PaymentGate{Status: PaymentCancelled, TotalAmount: 100, PaymentsNet: 100}
		require.False(t, gate.Unlocked())
	})
}
