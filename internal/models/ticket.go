package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Ticket binds one seat to one session within one order. The unique
// group on (session_id, seat_id) is the arbiter for double booking:
// tickets of failed orders are deleted, so an existing row always means
// the seat is held or sold. Price is locked in at purchase time.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID          string    `bun:"id,pk" json:"id"`
	OrderID     string    `bun:"order_id,notnull" json:"order_id"`
	SessionID   int64     `bun:"session_id,notnull,unique:tickets_session_seat" json:"session_id"`
	SeatID      int64     `bun:"seat_id,notnull,unique:tickets_session_seat" json:"seat_id"`
	Price       int64     `bun:"price,notnull" json:"price"`
	IsCancelled bool      `bun:"is_cancelled,notnull,default:false" json:"is_cancelled"`
	IssuedAt    time.Time `bun:"issued_at,notnull" json:"issued_at"`
}
