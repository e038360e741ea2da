package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BonusKind string

const (
	BonusAccrual    BonusKind = "ACCRUAL"
	BonusRedemption BonusKind = "REDEMPTION"
	BonusRefunded   BonusKind = "REFUNDED"
)

// BonusTransaction is an append-only ledger entry. Amount is signed:
// positive for accruals and refunds, negative for redemptions. Rows are
// never mutated or deleted.
type BonusTransaction struct {
	bun.BaseModel `bun:"table:bonus_transactions"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	Amount    int64     `bun:"amount,notnull" json:"amount"`
	Kind      BonusKind `bun:"kind,notnull" json:"kind"`
	OrderID   string    `bun:"order_id,nullzero" json:"order_id,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// UserProfile holds the cached bonus balance and the demographic fields
// used for age gating. The balance is mutated only in lockstep with a
// ledger insert, inside the same transaction.
type UserProfile struct {
	bun.BaseModel `bun:"table:user_profiles"`

	UserID       string     `bun:"user_id,pk" json:"user_id"`
	Email        string     `bun:"email,nullzero" json:"email,omitempty"`
	BirthDate    *time.Time `bun:"birth_date,nullzero" json:"birth_date,omitempty"`
	BonusBalance int64      `bun:"bonus_balance,notnull,default:0" json:"bonus_balance"`
}

// BonusAccount is the ledger view returned to the account owner.
type BonusAccount struct {
	Balance      int64              `json:"balance"`
	Transactions []BonusTransaction `json:"transactions"`
}
