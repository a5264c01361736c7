package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/pkg/enums"
)

// PaymentAttempt audits one checkout session opened for an order.
type PaymentAttempt struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	SessionRef       string                  `gorm:"column:session_ref;not null"`
	Outcome          enums.AttemptOutcome    `gorm:"column:outcome;not null;default:'open'"`
	Reason           *string                 `gorm:"column:reason"`
	Source           *enums.ResolutionSource `gorm:"column:source"`
	ExternalIdentity *string                 `gorm:"column:external_identity"`
	CreatedAt        time.Time               `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt       *time.Time              `gorm:"column:resolved_at"`
}

func (PaymentAttempt) TableName() string { return "payment_attempts" }
