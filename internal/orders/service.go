package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/craftstore-backend/pkg/errors"
	"github.com/angelmondragon/craftstore-backend/pkg/money"
)

const pendingListLimit = 20

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ledger is the authoritative record of orders and their payment status.
type Ledger interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error)
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, to enums.PaymentStatus, res Resolution) (StatusChange, error)
	Reopen(ctx context.Context, orderID uuid.UUID) (bool, error)
	AttachSession(ctx context.Context, orderID uuid.UUID, previous, next string) error
	ListPendingForCustomer(ctx context.Context, ownerID, email string) ([]models.Order, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	MarkSwept(ctx context.Context, orderID uuid.UUID, sessionRef string) error
	Attempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error)
}

type service struct {
	repo Repository
	tx   txRunner
	now  func() time.Time
}

// NewService builds the orders ledger with the required dependencies.
func NewService(repo Repository, tx txRunner) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, now: time.Now}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	owner := strings.TrimSpace(input.OwnerID)
	if owner == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "order owner required")
	}
	customer := input.Customer.Normalize()
	if missing := missingCustomerFields(customer); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer details incomplete").
			WithDetails(map[string]any{"missing": missing})
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}

	orderID := uuid.New()
	items := make([]models.OrderItem, 0, len(input.Items))
	var sum int64
	for i, line := range input.Items {
		if strings.TrimSpace(line.ProductID) == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %d missing product id", i))
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %s quantity must be positive", line.ProductID))
		}
		if line.UnitPriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("item %s price must not be negative", line.ProductID))
		}
		lineTotal := money.LineTotal(line.UnitPriceCents, line.Quantity)
		sum += lineTotal
		items = append(items, models.OrderItem{
			ID:                 uuid.New(),
			OrderID:            orderID,
			Position:           i,
			ProductID:          line.ProductID,
			ProductName:        line.ProductName,
			ProductDescription: line.ProductDescription,
			Quantity:           line.Quantity,
			UnitPriceCents:     line.UnitPriceCents,
			LineTotalCents:     lineTotal,
		})
	}
	if sum != input.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total does not match items").
			WithDetails(map[string]any{"expected_cents": sum, "got_cents": input.TotalCents})
	}

	order := &models.Order{
		ID:              orderID,
		OwnerID:         owner,
		CustomerName:    customer.Name,
		CustomerEmail:   customer.Email,
		CustomerPhone:   customer.Phone,
		ShippingAddress: customer.ShippingAddress,
		TotalCents:      sum,
		Currency:        enums.CurrencyUSD,
		PaymentStatus:   enums.PaymentStatusPending,
		Items:           items,
	}
	created, err := s.repo.CreateOrder(ctx, order)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return created, nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, mapFindErr(err, "order")
	}
	return order, nil
}

func (s *service) GetBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error) {
	sessionRef = strings.TrimSpace(sessionRef)
	if sessionRef == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session ref required")
	}
	order, err := s.repo.FindOrderBySessionRef(ctx, sessionRef)
	if err != nil {
		return nil, mapFindErr(err, "order for session")
	}
	return order, nil
}

// SetPaymentStatus applies pending->paid or pending->failed. Updates that would
// move a settled order are ignored and reported as not applied.
func (s *service) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, to enums.PaymentStatus, res Resolution) (StatusChange, error) {
	if to != enums.PaymentStatusPaid && to != enums.PaymentStatusFailed {
		return StatusChange{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cannot set payment status to %q", to))
	}

	var change StatusChange
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrder(ctx, orderID)
		if err != nil {
			return mapFindErr(err, "order")
		}
		change = StatusChange{Previous: order.PaymentStatus, Current: order.PaymentStatus}
		if !order.PaymentStatus.CanTransition(to) {
			return nil
		}

		now := s.now().UTC()
		applied, err := repo.TransitionPaymentStatus(ctx, orderID, order.PaymentStatus, to, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if !applied {
			// lost a race; report whatever the winner wrote
			latest, err := repo.FindOrder(ctx, orderID)
			if err != nil {
				return mapFindErr(err, "order")
			}
			change.Current = latest.PaymentStatus
			return nil
		}
		change.Applied = true
		change.Current = to

		ref := res.SessionRef
		if ref == "" {
			ref = order.SessionRef()
		}
		if ref == "" {
			return nil
		}
		outcome := enums.AttemptOutcomePaid
		if to == enums.PaymentStatusFailed {
			outcome = enums.AttemptOutcomeFailed
		}
		if _, err := repo.ResolveAttempt(ctx, ref, outcome, AttemptResolution{
			Reason:           res.Reason,
			Source:           res.Source,
			ExternalIdentity: res.ExternalIdentity,
			At:               now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payment attempt")
		}
		return nil
	})
	if err != nil {
		return StatusChange{}, err
	}
	return change, nil
}

// Reopen moves a failed order back to pending so a fresh session can be opened.
func (s *service) Reopen(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ok, err := s.repo.ReopenFailed(ctx, orderID, s.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reopen order")
	}
	return ok, nil
}

// AttachSession stamps next as the order's session ref, provided the order is
// still pending and still carries previous. The superseded attempt is closed.
func (s *service) AttachSession(ctx context.Context, orderID uuid.UUID, previous, next string) error {
	next = strings.TrimSpace(next)
	if next == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "session ref required")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now().UTC()
		stamped, err := repo.StampSessionRef(ctx, orderID, previous, next, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stamp session ref")
		}
		if !stamped {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is no longer awaiting this session").
				WithDetails(map[string]any{"order_id": orderID.String()})
		}
		if err := repo.CreateAttempt(ctx, &models.PaymentAttempt{
			ID:         uuid.New(),
			OrderID:    orderID,
			SessionRef: next,
			Outcome:    enums.AttemptOutcomeOpen,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payment attempt")
		}
		if previous == "" {
			return nil
		}
		if _, err := repo.ResolveAttempt(ctx, previous, enums.AttemptOutcomeSuperseded, AttemptResolution{
			Reason: "replaced by " + next,
			Source: enums.ResolutionSourceRetry,
			At:     now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede payment attempt")
		}
		return nil
	})
}

func (s *service) ListPendingForCustomer(ctx context.Context, ownerID, email string) ([]models.Order, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email required")
	}
	orders, err := s.repo.ListPendingByOwnerEmail(ctx, ownerID, email, pendingListLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending orders")
	}
	return orders, nil
}

func (s *service) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	orders, err := s.repo.ListPendingWithSessionBefore(ctx, cutoff.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}
	return orders, nil
}

// MarkSwept records that a sweep checked a still-open session so the next
// batch starts with orders that have not been looked at yet. A settled or
// re-stamped order is left alone.
func (s *service) MarkSwept(ctx context.Context, orderID uuid.UUID, sessionRef string) error {
	if _, err := s.repo.TouchPendingSession(ctx, orderID, sessionRef, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order swept")
	}
	return nil
}

func (s *service) Attempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error) {
	attempts, err := s.repo.ListAttempts(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment attempts")
	}
	return attempts, nil
}

func missingCustomerFields(c CustomerDetails) []string {
	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.Email == "" {
		missing = append(missing, "email")
	}
	if c.Phone == "" {
		missing = append(missing, "phone")
	}
	if c.ShippingAddress == "" {
		missing = append(missing, "shipping_address")
	}
	return missing
}

func mapFindErr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, what+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+what)
}
