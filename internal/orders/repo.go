package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/craftstore-backend/pkg/db/models"
	"github.com/angelmondragon/craftstore-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.withItems(ctx).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderBySessionRef(ctx context.Context, sessionRef string) (*models.Order, error) {
	var order models.Order
	err := r.withItems(ctx).
		Where("external_session_ref = ?", sessionRef).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListPendingByOwnerEmail(ctx context.Context, ownerID, email string, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.withItems(ctx).
		Where("owner_id = ? AND customer_email = ? AND payment_status = ?", ownerID, email, enums.PaymentStatusPending).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *repository) ListPendingWithSessionBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND external_session_ref IS NOT NULL AND updated_at < ?", enums.PaymentStatusPending, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

// TouchPendingSession bumps updated_at on a pending order still carrying
// sessionRef, which moves it to the back of the stale-pending queue.
func (r *repository) TouchPendingSession(ctx context.Context, orderID uuid.UUID, sessionRef string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND external_session_ref = ?", orderID, enums.PaymentStatusPending, sessionRef).
		Update("updated_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TransitionPaymentStatus moves from -> to only while the row still holds from.
func (r *repository) TransitionPaymentStatus(ctx context.Context, orderID uuid.UUID, from, to enums.PaymentStatus, at time.Time) (bool, error) {
	updates := map[string]any{
		"payment_status": to,
		"updated_at":     at,
	}
	switch to {
	case enums.PaymentStatusPaid:
		updates["paid_at"] = at
	case enums.PaymentStatusFailed:
		updates["failed_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReopenFailed moves a failed order back to pending and drops its session ref.
func (r *repository) ReopenFailed(ctx context.Context, orderID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusFailed).
		Updates(map[string]any{
			"payment_status":       enums.PaymentStatusPending,
			"external_session_ref": nil,
			"failed_at":            nil,
			"updated_at":           at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// StampSessionRef compare-and-sets the session ref on a pending order. An empty
// previous means the order must not carry a ref yet.
func (r *repository) StampSessionRef(ctx context.Context, orderID uuid.UUID, previous, next string, at time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", orderID, enums.PaymentStatusPending)
	if previous == "" {
		query = query.Where("external_session_ref IS NULL")
	} else {
		query = query.Where("external_session_ref = ?", previous)
	}
	res := query.Updates(map[string]any{
		"external_session_ref": next,
		"updated_at":           at,
	})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// ResolveAttempt settles an open attempt; already-settled attempts are left alone.
func (r *repository) ResolveAttempt(ctx context.Context, sessionRef string, outcome enums.AttemptOutcome, res AttemptResolution) (bool, error) {
	updates := map[string]any{
		"outcome":     outcome,
		"resolved_at": res.At,
	}
	if res.Reason != "" {
		updates["reason"] = res.Reason
	}
	if res.Source != "" {
		updates["source"] = res.Source
	}
	if res.ExternalIdentity != "" {
		updates["external_identity"] = res.ExternalIdentity
	}
	result := r.db.WithContext(ctx).
		Model(&models.PaymentAttempt{}).
		Where("session_ref = ? AND outcome = ?", sessionRef, enums.AttemptOutcomeOpen).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListAttempts(ctx context.Context, orderID uuid.UUID) ([]models.PaymentAttempt, error) {
	var attempts []models.PaymentAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *repository) withItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}
