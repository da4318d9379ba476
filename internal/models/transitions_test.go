package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var allOrderStatuses = []OrderStatus{
	OrderCreated, OrderSubmitted, OrderAccepted, OrderRejected,
	OrderPaymentPending, OrderPaymentSuccess, OrderPaymentFailed,
	OrderAllotted, OrderCancelled, OrderFailed,
}

var allMandateStatuses = []MandateStatus{
	MandateCreated, MandateSubmitted, MandateApproved, MandateRejected,
	MandateCancelled, MandateExpired, MandateShifted,
}

// Property: no transition ever leaves a terminal order status, and
// re-applying the current status is never a valid transition.
func TestProperty_OrderTransitionsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	statusGen := gen.IntRange(0, len(allOrderStatuses)-1)

	properties.Property("terminal statuses admit no transition", prop.ForAll(
		func(fromIdx, toIdx int) bool {
			from := allOrderStatuses[fromIdx]
			to := allOrderStatuses[toIdx]
			if from.Terminal() && from.CanTransition(to) {
				return false
			}
			if from == to && from.CanTransition(to) {
				return false
			}
			return true
		},
		statusGen, statusGen,
	))

	properties.Property("every valid transition target is reachable, never terminal source", prop.ForAll(
		func(fromIdx, toIdx int) bool {
			from := allOrderStatuses[fromIdx]
			to := allOrderStatuses[toIdx]
			if !from.CanTransition(to) {
				return true
			}
			// a valid step must change the status and come from a live state
			return from != to && !from.Terminal()
		},
		statusGen, statusGen,
	))

	properties.TestingRun(t)
}

func TestOrderStatusLifecyclePaths(t *testing.T) {
	// The happy purchase path walks the graph end to end.
	path := []OrderStatus{
		OrderCreated, OrderSubmitted, OrderAccepted,
		OrderPaymentPending, OrderPaymentSuccess, OrderAllotted,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.True(t, path[i].CanTransition(path[i+1]),
			"%s -> %s should be valid", path[i], path[i+1])
	}

	// A failed payment can be retried.
	assert.True(t, OrderPaymentFailed.CanTransition(OrderPaymentPending))

	// Nothing comes back from ALLOTTED.
	for _, to := range allOrderStatuses {
		assert.False(t, OrderAllotted.CanTransition(to), "ALLOTTED -> %s", to)
	}

	// CREATED resolves only forward.
	assert.True(t, OrderCreated.CanTransition(OrderSubmitted))
	assert.True(t, OrderCreated.CanTransition(OrderRejected))
	assert.True(t, OrderCreated.CanTransition(OrderFailed))
	assert.False(t, OrderCreated.CanTransition(OrderAllotted))
}

func TestMandateStatusTransitions(t *testing.T) {
	assert.True(t, MandateSubmitted.CanTransition(MandateApproved))
	assert.True(t, MandateApproved.CanTransition(MandateShifted))
	assert.False(t, MandateApproved.CanTransition(MandateSubmitted))

	for _, s := range allMandateStatuses {
		if s.Terminal() {
			for _, to := range allMandateStatuses {
				assert.False(t, s.CanTransition(to), "%s -> %s", s, to)
			}
			assert.False(t, s.Pollable(), "%s should not be pollable", s)
		}
	}

	assert.True(t, MandateCreated.Pollable())
	assert.True(t, MandateSubmitted.Pollable())
	assert.False(t, MandateApproved.Pollable())
}

func TestSessionTokenValid(t *testing.T) {
	now := time.Now()
	token := &SessionToken{Token: "abc", ExpiresAt: now.Add(time.Minute)}
	assert.True(t, token.Valid(now))
	assert.False(t, token.Valid(now.Add(2*time.Minute)))

	var nilToken *SessionToken
	assert.False(t, nilToken.Valid(now))
}
