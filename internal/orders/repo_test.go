package orders

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	orders := `
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  customer_phone TEXT NOT NULL,
  shipping_address TEXT NOT NULL,
  total_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  payment_status TEXT NOT NULL DEFAULT 'pending',
  external_session_ref TEXT UNIQUE,
  paid_at DATETIME,
  failed_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	items := `
CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id),
  position INTEGER NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  product_description TEXT NOT NULL DEFAULT '',
  quantity INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  line_total_cents INTEGER NOT NULL,
  created_at DATETIME
);`
	attempts := `
CREATE TABLE payment_attempts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders(id),
  session_ref TEXT NOT NULL UNIQUE,
  outcome TEXT NOT NULL DEFAULT 'open',
  reason TEXT,
  source TEXT,
  external_identity TEXT,
  created_at DATETIME,
  resolved_at DATETIME
);`
	for _, stmt := range []string{orders, items, attempts} {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func seedOrder(t *testing.T, repo Repository, owner, email string) *models.Order {
	t.Helper()
	id := uuid.New()
	order := &models.Order{
		ID:              id,
		OwnerID:         owner,
		CustomerName:    "Ada",
		CustomerEmail:   email,
		CustomerPhone:   "555-0100",
		ShippingAddress: "1 Loom Lane",
		TotalCents:      2500,
		Currency:        enums.CurrencyUSD,
		PaymentStatus:   enums.PaymentStatusPending,
		Items: []models.OrderItem{
			{ID: uuid.New(), OrderID: id, Position: 1, ProductID: "mug", ProductName: "Mug", Quantity: 1, UnitPriceCents: 500, LineTotalCents: 500},
			{ID: uuid.New(), OrderID: id, Position: 0, ProductID: "scarf", ProductName: "Scarf", Quantity: 2, UnitPriceCents: 1000, LineTotalCents: 2000},
		},
	}
	created, err := repo.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	return created
}

func TestRepositoryCreateAndFindOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	order := seedOrder(t, repo, "buyer-1", "ada@example.com")

	found, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, found.PaymentStatus)
	assert.Equal(t, int64(2500), found.TotalCents)
	require.Len(t, found.Items, 2)
	assert.Equal(t, "scarf", found.Items[0].ProductID)
	assert.Equal(t, "mug", found.Items[1].ProductID)
	assert.Empty(t, found.SessionRef())

	_, err = repo.FindOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	order := seedOrder(t, repo, "buyer-1", "ada@example.com")
	now := time.Now().UTC()

	ok, err := repo.TransitionPaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusPaid, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionPaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed, now)
	require.NoError(t, err)
	assert.False(t, ok, "paid order must not be moved by a pending-guarded update")

	found, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPaid, found.PaymentStatus)
	assert.NotNil(t, found.PaidAt)
	assert.Nil(t, found.FailedAt)
}

func TestRepositoryStampSessionRefCompareAndSet(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	order := seedOrder(t, repo, "buyer-1", "ada@example.com")
	now := time.Now().UTC()

	ok, err := repo.StampSessionRef(ctx, order.ID, "", "cs_test_1", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.StampSessionRef(ctx, order.ID, "", "cs_test_2", now)
	require.NoError(t, err)
	assert.False(t, ok, "stamp without previous must fail once a ref exists")

	ok, err = repo.StampSessionRef(ctx, order.ID, "cs_test_1", "cs_test_2", now)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.FindOrderBySessionRef(ctx, "cs_test_2")
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindOrderBySessionRef(ctx, "cs_test_1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryReopenFailedClearsRef(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	order := seedOrder(t, repo, "buyer-1", "ada@example.com")
	now := time.Now().UTC()

	ok, err := repo.ReopenFailed(ctx, order.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "pending orders are not reopened")

	_, err = repo.StampSessionRef(ctx, order.ID, "", "cs_test_1", now)
	require.NoError(t, err)
	_, err = repo.TransitionPaymentStatus(ctx, order.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed, now)
	require.NoError(t, err)

	ok, err = repo.ReopenFailed(ctx, order.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, found.PaymentStatus)
	assert.Nil(t, found.ExternalSessionRef)
	assert.Nil(t, found.FailedAt)
}

func TestRepositoryListPendingByOwnerEmail(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	mine := seedOrder(t, repo, "buyer-1", "ada@example.com")
	paid := seedOrder(t, repo, "buyer-1", "ada@example.com")
	seedOrder(t, repo, "buyer-2", "ada@example.com")
	seedOrder(t, repo, "buyer-1", "other@example.com")

	_, err := repo.TransitionPaymentStatus(ctx, paid.ID, enums.PaymentStatusPending, enums.PaymentStatusPaid, time.Now().UTC())
	require.NoError(t, err)

	list, err := repo.ListPendingByOwnerEmail(ctx, "buyer-1", "ada@example.com", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)
	assert.Len(t, list[0].Items, 2)
}

func TestRepositoryListPendingWithSessionBefore(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	now := time.Now().UTC()

	stale := seedOrder(t, repo, "buyer-1", "ada@example.com")
	fresh := seedOrder(t, repo, "buyer-1", "ada@example.com")
	seedOrder(t, repo, "buyer-1", "ada@example.com") // no session

	_, err := repo.StampSessionRef(ctx, stale.ID, "", "cs_stale", now.Add(-48*time.Hour))
	require.NoError(t, err)
	_, err = repo.StampSessionRef(ctx, fresh.ID, "", "cs_fresh", now)
	require.NoError(t, err)

	list, err := repo.ListPendingWithSessionBefore(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stale.ID, list[0].ID)
}

func TestRepositoryAttempts(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	order := seedOrder(t, repo, "buyer-1", "ada@example.com")

	require.NoError(t, repo.CreateAttempt(ctx, &models.PaymentAttempt{
		ID: uuid.New(), OrderID: order.ID, SessionRef: "cs_1", Outcome: enums.AttemptOutcomeOpen,
	}))

	ok, err := repo.ResolveAttempt(ctx, "cs_1", enums.AttemptOutcomePaid, AttemptResolution{
		Source: enums.ResolutionSourceReturn, ExternalIdentity: "pi_123", At: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ResolveAttempt(ctx, "cs_1", enums.AttemptOutcomeFailed, AttemptResolution{At: time.Now().UTC()})
	require.NoError(t, err)
	assert.False(t, ok, "settled attempts stay settled")

	attempts, err := repo.ListAttempts(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, enums.AttemptOutcomePaid, attempts[0].Outcome)
	require.NotNil(t, attempts[0].ExternalIdentity)
	assert.Equal(t, "pi_123", *attempts[0].ExternalIdentity)
	require.NotNil(t, attempts[0].Source)
	assert.Equal(t, enums.ResolutionSourceReturn, *attempts[0].Source)
}

func TestRepositoryTouchPendingSessionRequeues(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupOrdersTestDB(t))
	now := time.Now().UTC()

	older := seedOrder(t, repo, "buyer-1", "ada@example.com")
	newer := seedOrder(t, repo, "buyer-1", "ada@example.com")
	_, err := repo.StampSessionRef(ctx, older.ID, "", "cs_older", now.Add(-72*time.Hour))
	require.NoError(t, err)
	_, err = repo.StampSessionRef(ctx, newer.ID, "", "cs_newer", now.Add(-48*time.Hour))
	require.NoError(t, err)

	list, err := repo.ListPendingWithSessionBefore(ctx, now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, older.ID, list[0].ID)

	touched, err := repo.TouchPendingSession(ctx, older.ID, "cs_other", now)
	require.NoError(t, err)
	assert.False(t, touched, "a different session ref must not match")

	touched, err = repo.TouchPendingSession(ctx, older.ID, "cs_older", now)
	require.NoError(t, err)
	assert.True(t, touched)

	list, err = repo.ListPendingWithSessionBefore(ctx, now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, newer.ID, list[0].ID)
}
