// Package bonus maintains the per-user bonus point ledger. The cached
// balance on the user profile and the append-only transaction rows are
// always written together, inside the transaction the caller is already
// running for the order write they accompany.
package bonus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cinema-ticketing/internal/models"

	"github.com/uptrace/bun"
)

// ErrBalanceConflict is returned when the guarded balance update did
// not apply, meaning a concurrent writer drained the balance first.
var ErrBalanceConflict = errors.New("bonus balance changed concurrently")

// AccrualFor returns floor(3% × paid amount).
func AccrualFor(totalPaid int64) int64 {
	return totalPaid * 3 / 100
}

// Debit redeems up to maxAmount points from the user's balance and
// records a REDEMPTION entry linked to the order. The actual amount
// debited is min(balance, maxAmount) and is returned; a zero debit
// writes nothing. Never drives the balance negative.
func Debit(ctx context.Context, idb bun.IDB, userID string, maxAmount int64, orderID string) (int64, error) {
	if maxAmount <= 0 {
		return 0, nil
	}

	var profile models.UserProfile
	err := idb.NewSelect().
		Model(&profile).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load profile for debit: %w", err)
	}

	amount := profile.BonusBalance
	if amount > maxAmount {
		amount = maxAmount
	}
	if amount <= 0 {
		return 0, nil
	}

	// The balance guard closes the window between the read above and
	// this write under concurrent redemptions by the same user.
	res, err := idb.NewUpdate().
		Model((*models.UserProfile)(nil)).
		Set("bonus_balance = bonus_balance - ?", amount).
		Where("user_id = ? AND bonus_balance >= ?", userID, amount).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("debit balance: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return 0, ErrBalanceConflict
	}

	tx := models.BonusTransaction{
		UserID:    userID,
		Amount:    -amount,
		Kind:      models.BonusRedemption,
		OrderID:   orderID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := idb.NewInsert().Model(&tx).Exec(ctx); err != nil {
		return 0, fmt.Errorf("record redemption: %w", err)
	}
	return amount, nil
}

// Credit adds amount points to the user's balance and records a ledger
// entry of the given kind linked to the order. A profile row is created
// on first credit.
func Credit(ctx context.Context, idb bun.IDB, userID string, amount int64, kind models.BonusKind, orderID string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	profile := models.UserProfile{UserID: userID, BonusBalance: 0}
	_, err := idb.NewInsert().
		Model(&profile).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	_, err = idb.NewUpdate().
		Model((*models.UserProfile)(nil)).
		Set("bonus_balance = bonus_balance + ?", amount).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}

	tx := models.BonusTransaction{
		UserID:    userID,
		Amount:    amount,
		Kind:      kind,
		OrderID:   orderID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := idb.NewInsert().Model(&tx).Exec(ctx); err != nil {
		return fmt.Errorf("record %s: %w", kind, err)
	}
	return nil
}
