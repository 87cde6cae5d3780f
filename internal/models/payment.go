package models

import (
	"time"

	"relove/market/internal/utils"
)

// PaymentOrderStatus is the settlement state of a payment order.
type PaymentOrderStatus string

const (
	PaymentOrderPending PaymentOrderStatus = "PENDING"
	PaymentOrderPaid    PaymentOrderStatus = "PAID"
)

// PaymentOrder records a payment-succeeded fact delivered by the payment
// event source. OrderID is unique; claiming an order flips it PENDING->PAID
// exactly once, which is what makes webhook redelivery a no-op.
type PaymentOrder struct {
	Base      `bson:",inline"`
	OrderID        string             `bson:"order_id" json:"order_id"`
	UserID         utils.SixID        `bson:"user_id" json:"user_id"`
	PlanID         utils.SixID        `bson:"plan_id" json:"plan_id"`
	Status         PaymentOrderStatus `bson:"status" json:"status"`
	SubscriptionID utils.SixID        `bson:"subscription_id,omitempty" json:"subscription_id,omitempty"`
	PaidAt         *time.Time         `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}
