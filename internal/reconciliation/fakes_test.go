package reconciliation

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/internal/cart"
	"github.com/angelmondragon/craftstore-backend/internal/checkout"
	"github.com/angelmondragon/craftstore-backend/internal/handoff"
	"github.com/angelmondragon/craftstore-backend/internal/orders"
	"github.com/angelmondragon/craftstore-backend/internal/payments"
	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/kv"
	"github.com/angelmondragon/craftstore-backend/pkg/logger"
	"github.com/angelmondragon/craftstore-backend/pkg/money"
	"github.com/angelmondragon/craftstore-backend/pkg/retry"
)

type callerKey struct{}

func asCaller(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callerKey{}, id)
}

var testIdentity = IdentityFunc(func(ctx context.Context) (string, error) {
	id, _ := ctx.Value(callerKey{}).(string)
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "no caller")
	}
	return id, nil
})

// fakeLedger keeps the same guards as the real ledger: pending->paid|failed
// only, failed->pending via Reopen, compare-and-set session refs.
type fakeLedger struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]*models.Order
	attempts   map[string]enums.AttemptOutcome
	creates    int
	setCalls   int
	createErr  []error
	setErr     error
	attachErr  error
	superseded []string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{orders: map[uuid.UUID]*models.Order{}, attempts: map[string]enums.AttemptOutcome{}}
}

func (f *fakeLedger) Create(ctx context.Context, in orders.CreateOrderInput) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if len(f.createErr) > 0 {
		err := f.createErr[0]
		f.createErr = f.createErr[1:]
		return nil, err
	}
	c := in.Customer.Normalize()
	if c.Name == "" || c.Email == "" || c.Phone == "" || c.ShippingAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer details incomplete")
	}
	order := &models.Order{
		ID: uuid.New(), OwnerID: in.OwnerID, CustomerEmail: c.Email, TotalCents: in.TotalCents,
		Currency: enums.CurrencyUSD, PaymentStatus: enums.PaymentStatusPending,
	}
	var sum int64
	for i, item := range in.Items {
		line := money.LineTotal(item.UnitPriceCents, item.Quantity)
		sum += line
		order.Items = append(order.Items, models.OrderItem{
			ID: uuid.New(), OrderID: order.ID, Position: i, ProductID: item.ProductID, ProductName: item.ProductName,
			Quantity: item.Quantity, UnitPriceCents: item.UnitPriceCents, LineTotalCents: line,
		})
	}
	if sum != in.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total does not match items")
	}
	f.orders[order.ID] = order
	clone := *order
	return &clone, nil
}

func (f *fakeLedger) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	clone := *order
	return &clone, nil
}

func (f *fakeLedger) GetBySessionRef(ctx context.Context, ref string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, order := range f.orders {
		if order.SessionRef() == ref {
			clone := *order
			return &clone, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (f *fakeLedger) SetPaymentStatus(ctx context.Context, id uuid.UUID, to enums.PaymentStatus, res orders.Resolution) (orders.StatusChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.setErr != nil {
		return orders.StatusChange{}, f.setErr
	}
	order, ok := f.orders[id]
	if !ok {
		return orders.StatusChange{}, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	change := orders.StatusChange{Previous: order.PaymentStatus, Current: order.PaymentStatus}
	if !order.PaymentStatus.CanTransition(to) || to == enums.PaymentStatusPending {
		return change, nil
	}
	order.PaymentStatus = to
	change.Applied = true
	change.Current = to
	if res.SessionRef != "" && f.attempts[res.SessionRef] == enums.AttemptOutcomeOpen {
		f.attempts[res.SessionRef] = enums.AttemptOutcome(to)
	}
	return change, nil
}

func (f *fakeLedger) Reopen(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok || order.PaymentStatus != enums.PaymentStatusFailed {
		return false, nil
	}
	order.PaymentStatus = enums.PaymentStatusPending
	order.ExternalSessionRef = nil
	return true, nil
}

func (f *fakeLedger) AttachSession(ctx context.Context, id uuid.UUID, previous, next string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attachErr != nil {
		return f.attachErr
	}
	order, ok := f.orders[id]
	if !ok || order.PaymentStatus != enums.PaymentStatusPending || order.SessionRef() != previous {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting this session")
	}
	order.ExternalSessionRef = &next
	f.attempts[next] = enums.AttemptOutcomeOpen
	if previous != "" {
		f.attempts[previous] = enums.AttemptOutcomeSuperseded
		f.superseded = append(f.superseded, previous)
	}
	return nil
}

func (f *fakeLedger) ListPendingForCustomer(ctx context.Context, ownerID, email string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, order := range f.orders {
		if order.OwnerID == ownerID && order.CustomerEmail == email && order.PaymentStatus == enums.PaymentStatusPending {
			out = append(out, *order)
		}
	}
	return out, nil
}

func (f *fakeLedger) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeLedger) MarkSwept(ctx context.Context, id uuid.UUID, ref string) error {
	return nil
}

func (f *fakeLedger) Attempts(ctx context.Context, id uuid.UUID) ([]models.PaymentAttempt, error) {
	return nil, nil
}

func (f *fakeLedger) status(id uuid.UUID) enums.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].PaymentStatus
}

func (f *fakeLedger) ref(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id].SessionRef()
}

type fakeInitiator struct {
	configured bool
	openErr    error
	failOpens  int
	expireErr  error
	opened     []string
	expired    []string
	keys       []string
	seq        int
}

func (f *fakeInitiator) Configured() bool { return f.configured }

func (f *fakeInitiator) Open(ctx context.Context, req checkout.Request) (*checkout.Session, error) {
	f.keys = append(f.keys, req.IdempotencyKey)
	if f.openErr != nil {
		return nil, f.openErr
	}
	if f.failOpens > 0 {
		f.failOpens--
		return nil, pkgerrors.Wrap(pkgerrors.CodeSessionCreationFailed, errTransient, "create checkout session")
	}
	f.seq++
	ref := "cs_test_" + string(rune('0'+f.seq))
	f.opened = append(f.opened, ref)
	return &checkout.Session{ExternalSessionRef: ref, RedirectURL: "https://checkout.example/" + ref, LineItems: req.Items}, nil
}

func (f *fakeInitiator) Expire(ctx context.Context, ref string) error {
	f.expired = append(f.expired, ref)
	return f.expireErr
}

type fakeVerifier struct {
	outcomes map[string]payments.Outcome
	err      error
	calls    int
}

func (f *fakeVerifier) Verify(ctx context.Context, ref string, orderID uuid.UUID) (payments.Outcome, error) {
	f.calls++
	if f.err != nil {
		return payments.Outcome{}, f.err
	}
	if out, ok := f.outcomes[ref]; ok {
		return out, nil
	}
	return payments.Outcome{Kind: payments.KindFailed, Reason: "session still open", SessionStatus: "open", Ambiguous: true}, nil
}

var (
	completed = payments.Outcome{Kind: payments.KindCompleted, ExternalIdentity: "pi_1", Terminal: true, SessionStatus: "complete"}
	expired   = payments.Outcome{Kind: payments.KindFailed, Reason: "session expired", Terminal: true, SessionStatus: "expired"}
)

type recordingMetrics struct {
	outcomes []string
	sessions []string
}

func (m *recordingMetrics) IncOutcome(source, outcome string) {
	m.outcomes = append(m.outcomes, source+"/"+outcome)
}

func (m *recordingMetrics) IncSession(result string) { m.sessions = append(m.sessions, result) }

type failingHandoffs struct {
	*handoff.Store
	putErr error
	getErr error
}

func (f *failingHandoffs) Put(ctx context.Context, scope handoff.Scope, orderID uuid.UUID) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.Put(ctx, scope, orderID)
}

func (f *failingHandoffs) Get(ctx context.Context, scope handoff.Scope) (handoff.Handoff, bool, error) {
	if f.getErr != nil {
		return handoff.Handoff{}, false, f.getErr
	}
	return f.Store.Get(ctx, scope)
}

type harness struct {
	coord     *Coordinator
	ledger    *fakeLedger
	initiator *fakeInitiator
	verifier  *fakeVerifier
	carts     *cart.Repository
	handoffs  *failingHandoffs
	metrics   *recordingMetrics
	logs      *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := kv.NewMemory()
	carts, err := cart.NewRepository(mem, func(id string) string { return "cart:" + id }, time.Hour, nil)
	if err != nil {
		t.Fatalf("cart repo: %v", err)
	}
	store, err := handoff.NewStore(mem, func(owner, tab string) string { return "handoff:" + owner + ":" + tab }, time.Hour)
	if err != nil {
		t.Fatalf("handoff store: %v", err)
	}
	h := &harness{
		ledger:    newFakeLedger(),
		initiator: &fakeInitiator{configured: true},
		verifier:  &fakeVerifier{outcomes: map[string]payments.Outcome{}},
		carts:     carts,
		handoffs:  &failingHandoffs{Store: store},
		metrics:   &recordingMetrics{},
		logs:      &bytes.Buffer{},
	}
	coord, err := NewCoordinator(Deps{
		Identity:  testIdentity,
		Ledger:    h.ledger,
		Carts:     carts,
		Handoffs:  h.handoffs,
		Initiator: h.initiator,
		Verifier:  h.verifier,
		Metrics:   h.metrics,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: h.logs}),
		Retry:     retry.Policy{Attempts: 3, BaseDelay: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	h.coord = coord
	return h
}

var errTransient = errors.New("connection reset")
