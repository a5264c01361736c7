package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
)

// Repository defines persistence operations for the orders ledger tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error)
	ListPendingByOwnerEmail(ctx context.Context, ownerID, email string, limit int) ([]models.Order, error)
	ListPendingWithSessionBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	TouchPendingSession(ctx context.Context, orderID uuid.UUID, sessionRef string, at time.Time) (bool, error)
	TransitionPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus, at time.Time) (bool, error)
	ReopenFailed(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error)
	StampSessionRef(ctx context.Context, orderID uuid.UUID, previous, next string, at time.Time) (bool, error)
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	ResolveAttempt(ctx context.Context, sessionRef string, outcome enums.AttemptOutcome, res AttemptResolution) (bool, error)
	ListAttempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error)
}

// AttemptResolution carries the audit fields written when a session settles.
type AttemptResolution struct {
	Reason           string
	Source           enums.ResolutionSource
	ExternalIdentity string
	At               time.Time
}
