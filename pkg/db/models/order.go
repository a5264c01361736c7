package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/craftstore-backend/pkg/enums"
)

// Order is the priced, auditable record of one purchase attempt. Items and
// TotalCents never change after insert; PaymentStatus moves only through
// conditional updates in the orders repository.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID            string              `gorm:"column:owner_id;not null"`
	CustomerName       string              `gorm:"column:customer_name;not null"`
	CustomerEmail      string              `gorm:"column:customer_email;not null"`
	CustomerPhone      string              `gorm:"column:customer_phone;not null"`
	ShippingAddress    string              `gorm:"column:shipping_address;not null"`
	TotalCents         int64               `gorm:"column:total_cents;not null"`
	Currency           enums.Currency      `gorm:"column:currency;not null;default:'usd'"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	ExternalSessionRef *string             `gorm:"column:external_session_ref"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	FailedAt           *time.Time          `gorm:"column:failed_at"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID;references:ID"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

// SessionRef returns the stamped processor session or "".
func (o *Order) SessionRef() string {
	if o == nil || o.ExternalSessionRef == nil {
		return ""
	}
	return *o.ExternalSessionRef
}
