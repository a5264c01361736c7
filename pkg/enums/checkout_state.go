package enums

// CheckoutState is the reconciliation state of one checkout attempt.
type CheckoutState string

const (
	CheckoutStateBuilding        CheckoutState = "building"
	CheckoutStateOrderCreated    CheckoutState = "order_created"
	CheckoutStateAwaitingPayment CheckoutState = "awaiting_payment"
	CheckoutStateResolving       CheckoutState = "resolving"
	CheckoutStateResolvedPaid    CheckoutState = "resolved_paid"
	CheckoutStateResolvedFailed  CheckoutState = "resolved_failed"
)

var allowedCheckoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateBuilding:        {CheckoutStateOrderCreated},
	CheckoutStateOrderCreated:    {CheckoutStateAwaitingPayment},
	CheckoutStateAwaitingPayment: {CheckoutStateResolving, CheckoutStateAwaitingPayment},
	CheckoutStateResolving:       {CheckoutStateResolvedPaid, CheckoutStateResolvedFailed},
	CheckoutStateResolvedFailed:  {CheckoutStateAwaitingPayment},
	CheckoutStateResolvedPaid:    {},
}

func (s CheckoutState) String() string {
	return string(s)
}

// CanTransition reports whether the coordinator may move from s to next.
func (s CheckoutState) CanTransition(next CheckoutState) bool {
	for _, candidate := range allowedCheckoutTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}
