package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

const (
	OrderPending  OrderStatus = "PENDING"
	OrderPaid     OrderStatus = "PAID"
	OrderFailed   OrderStatus = "FAILED"
	OrderRefunded OrderStatus = "REFUNDED" // administrative only
)

// Order is the reservation/payment aggregate. TotalAmount is the amount
// owed after the bonus discount and is never negative. CorrelationID is
// the opaque token the payment gateway echoes back in its callback.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string      `bun:"id,pk" json:"id"`
	UserID        string      `bun:"user_id,notnull" json:"user_id"`
	SessionID     int64       `bun:"session_id,notnull" json:"session_id"`
	Status        OrderStatus `bun:"status,notnull" json:"status"`
	TotalAmount   int64       `bun:"total_amount,notnull" json:"total_amount"`
	BonusesUsed   int64       `bun:"bonuses_used,notnull,default:0" json:"bonuses_used"`
	BonusesEarned int64       `bun:"bonuses_earned,notnull,default:0" json:"bonuses_earned"`
	CorrelationID string      `bun:"correlation_id,notnull,unique" json:"correlation_id"`
	CreatedAt     time.Time   `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time   `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Terminal reports whether no gateway-driven transition may leave the
// current status.
func (o *Order) Terminal() bool {
	return o.Status != OrderPending
}

type CreateOrderRequest struct {
	SessionID  int64   `json:"session_id"`
	SeatIDs    []int64 `json:"seat_ids"`
	UseBonuses bool    `json:"use_bonuses"`
}

// CheckoutPayload is the signed request the client forwards to the
// payment gateway.
type CheckoutPayload struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

type CreateOrderResponse struct {
	Order         *Order           `json:"order"`
	PaidByBonuses bool             `json:"paid_by_bonuses"`
	Payment       *CheckoutPayload `json:"payment,omitempty"`
}

type OrderWithTickets struct {
	Order   Order    `json:"order"`
	Tickets []Ticket `json:"tickets"`
}
