package enums

import "testing"

func TestPaymentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentStatusPending, PaymentStatusPaid, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusFailed, PaymentStatusPending, true},
		{PaymentStatusPaid, PaymentStatusFailed, false},
		{PaymentStatusPaid, PaymentStatusPending, false},
		{PaymentStatusFailed, PaymentStatusPaid, false},
		{PaymentStatusPending, PaymentStatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.want, got)
		}
	}
	if !PaymentStatusPaid.IsTerminal() || PaymentStatusFailed.IsTerminal() {
		t.Fatal("only paid is terminal")
	}
}

func TestParsePaymentStatus(t *testing.T) {
	if _, err := ParsePaymentStatus("settled"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
	got, err := ParsePaymentStatus("paid")
	if err != nil || got != PaymentStatusPaid {
		t.Fatalf("unexpected parse result %v %v", got, err)
	}
}

func TestCheckoutStateMachine(t *testing.T) {
	if !CheckoutStateResolvedFailed.CanTransition(CheckoutStateAwaitingPayment) {
		t.Fatal("failed attempts must be retryable")
	}
	if CheckoutStateResolvedPaid.CanTransition(CheckoutStateAwaitingPayment) {
		t.Fatal("paid is terminal")
	}
	if CheckoutStateOrderCreated.CanTransition(CheckoutStateResolving) {
		t.Fatal("cannot resolve without an open session")
	}
}

func TestParseReturnEntry(t *testing.T) {
	entry, err := ParseReturnEntry(" Cancel ")
	if err != nil || entry != ReturnEntryFailure {
		t.Fatalf("expected cancel alias, got %v %v", entry, err)
	}
	if _, err := ParseReturnEntry("maybe"); err == nil {
		t.Fatal("expected error for unknown entry")
	}
}

func TestCurrency(t *testing.T) {
	c, err := ParseCurrency(" USD ")
	if err != nil || c != CurrencyUSD {
		t.Fatalf("unexpected parse result %v %v", c, err)
	}
	if _, err := ParseCurrency("eur"); err == nil {
		t.Fatal("only usd is sold")
	}
	if got := c.Display(2500); got != "$25.00" {
		t.Fatalf("unexpected display %q", got)
	}
}
