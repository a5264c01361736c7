package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots one cart line at order creation.
type OrderItem struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID            uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	Position           int       `gorm:"column:position;not null"`
	ProductID          string    `gorm:"column:product_id;not null"`
	ProductName        string    `gorm:"column:product_name;not null"`
	ProductDescription string    `gorm:"column:product_description;not null;default:''"`
	Quantity           int       `gorm:"column:quantity;not null"`
	UnitPriceCents     int64     `gorm:"column:unit_price_cents;not null"`
	LineTotalCents     int64     `gorm:"column:line_total_cents;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }
