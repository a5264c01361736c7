package enums

// AttemptOutcome records what became of one opened checkout session.
type AttemptOutcome string

const (
	AttemptOutcomeOpen       AttemptOutcome = "open"
	AttemptOutcomePaid       AttemptOutcome = "paid"
	AttemptOutcomeFailed     AttemptOutcome = "failed"
	AttemptOutcomeSuperseded AttemptOutcome = "superseded"
)

func (a AttemptOutcome) String() string {
	return string(a)
}

// ResolutionSource names the path that reconciled a session.
type ResolutionSource string

const (
	ResolutionSourceReturn  ResolutionSource = "return"
	ResolutionSourceWebhook ResolutionSource = "webhook"
	ResolutionSourceSweep   ResolutionSource = "sweep"
	ResolutionSourceRetry   ResolutionSource = "retry"
)

func (r ResolutionSource) String() string {
	return string(r)
}
