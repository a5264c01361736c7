// Package payments turns processor session state into a canonical payment verdict.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/craftstore-backend/pkg/stripe"
)

// SessionReader is the read-only processor surface used for verification.
type SessionReader interface {
	Configured() bool
	GetCheckoutSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

// Kind is the canonical verdict.
type Kind string

const (
	KindCompleted Kind = "completed"
	KindFailed    Kind = "failed"
)

// Outcome is the normalized verification result. Only KindCompleted means the
// buyer paid; everything else, including ambiguity, is KindFailed.
type Outcome struct {
	Kind             Kind
	ExternalIdentity string
	RawResponse      json.RawMessage
	Reason           string
	// Terminal is true when the processor will not change its answer.
	Terminal bool
	// Ambiguous marks failures derived from missing or unexpected processor state.
	Ambiguous     bool
	SessionStatus string
}

func (o Outcome) Completed() bool { return o.Kind == KindCompleted }

// Observer receives verification latencies.
type Observer interface {
	ObserveVerification(result string, d time.Duration)
}

type Verifier struct {
	processor SessionReader
	observer  Observer
	now       func() time.Time
}

func NewVerifier(processor SessionReader, observer Observer) *Verifier {
	return &Verifier{processor: processor, observer: observer, now: time.Now}
}

// Verify reads the session and normalizes it. orderID, when set, must match the
// session's client reference. Errors are returned only when the processor could
// not be asked: unconfigured, or a transient failure worth retrying.
func (v *Verifier) Verify(ctx context.Context, sessionRef string, orderID uuid.UUID) (Outcome, error) {
	if v.processor == nil || !v.processor.Configured() {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeProcessorUnavailable, "payment processor not configured")
	}
	sessionRef = strings.TrimSpace(sessionRef)
	if sessionRef == "" {
		return ambiguous("no session to verify", ""), nil
	}

	start := v.now()
	session, err := v.processor.GetCheckoutSession(ctx, sessionRef)
	if err != nil {
		if pkgstripe.IsTransient(err) {
			v.observe("error", start)
			return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify checkout session")
		}
		v.observe("ambiguous", start)
		if pkgstripe.IsNotFound(err) {
			return ambiguous("session not found at processor", ""), nil
		}
		return ambiguous(fmt.Sprintf("processor rejected lookup: %v", err), ""), nil
	}

	outcome := Normalize(session, orderID)
	v.observe(string(outcome.Kind), start)
	return outcome, nil
}

// Normalize maps a processor session to an Outcome.
func Normalize(session *stripe.CheckoutSession, orderID uuid.UUID) Outcome {
	if session == nil {
		return ambiguous("empty processor response", "")
	}
	raw, _ := json.Marshal(session)
	status := string(session.Status)

	if orderID != uuid.Nil && session.ClientReferenceID != "" && session.ClientReferenceID != orderID.String() {
		out := ambiguous("session does not belong to order", status)
		out.RawResponse = raw
		return out
	}

	switch session.Status {
	case stripe.CheckoutSessionStatusComplete:
		switch session.PaymentStatus {
		case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
			out := Outcome{
				Kind:          KindCompleted,
				RawResponse:   raw,
				Terminal:      true,
				SessionStatus: status,
			}
			if session.PaymentIntent != nil {
				out.ExternalIdentity = session.PaymentIntent.ID
			}
			return out
		default:
			out := ambiguous(fmt.Sprintf("session complete but payment %s", session.PaymentStatus), status)
			out.RawResponse = raw
			return out
		}
	case stripe.CheckoutSessionStatusExpired:
		return Outcome{
			Kind:          KindFailed,
			RawResponse:   raw,
			Reason:        "session expired",
			Terminal:      true,
			SessionStatus: status,
		}
	case stripe.CheckoutSessionStatusOpen:
		out := ambiguous("session still open", status)
		out.RawResponse = raw
		return out
	default:
		out := ambiguous("unknown session status", status)
		out.RawResponse = raw
		return out
	}
}

func ambiguous(reason, status string) Outcome {
	return Outcome{Kind: KindFailed, Reason: reason, Ambiguous: true, SessionStatus: status}
}

func (v *Verifier) observe(result string, start time.Time) {
	if v.observer == nil {
		return
	}
	v.observer.ObserveVerification(result, v.now().Sub(start))
}
