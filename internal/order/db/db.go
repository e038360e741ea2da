// Package db is the storage layer for the booking core. Every
// multi-write operation runs in one transaction: order creation with
// tickets and bonus debit, confirmation with accrual, cancellation with
// refund and ticket release. The unique constraint on
// tickets(session_id, seat_id) is the arbiter for double booking; the
// availability queries here are only the optimistic pre-check.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cinema-ticketing/internal/bonus"
	"cinema-ticketing/internal/models"

	"github.com/uptrace/bun"
)

var (
	// ErrSeatTaken is the commit-time conflict: another order holds a
	// requested seat for the session. Distinct from validation errors so
	// callers can tell the client to re-fetch availability.
	ErrSeatTaken = errors.New("seat already taken for this session")

	ErrSessionNotFound = errors.New("session not found")
	ErrOrderNotFound   = errors.New("order not found")
)

type DB struct {
	Bun *bun.DB
}

// ---------------- reference data ----------------

func (d *DB) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	var session models.Session
	err := d.Bun.NewSelect().
		Model(&session).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (d *DB) GetMovie(ctx context.Context, id int64) (*models.Movie, error) {
	var movie models.Movie
	err := d.Bun.NewSelect().
		Model(&movie).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// GetProfile returns nil without error when the user has no profile row.
func (d *DB) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := d.Bun.NewSelect().
		Model(&profile).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ---------------- seat resolution ----------------

// SeatsInHall returns the requested seats that actually belong to the
// hall. A shorter result than the request means unknown or foreign ids.
func (d *DB) SeatsInHall(ctx context.Context, hallID int64, seatIDs []int64) ([]models.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	var seats []models.Seat
	err := d.Bun.NewSelect().
		Model(&seats).
		Where("hall_id = ?", hallID).
		Where("id IN (?)", bun.In(seatIDs)).
		Order("row", "num").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return seats, nil
}

// TakenSeatIDs returns which of the given seats already carry a ticket
// for the session. Tickets of failed orders are deleted, so existence
// alone means held or sold.
func (d *DB) TakenSeatIDs(ctx context.Context, sessionID int64, seatIDs []int64) ([]int64, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	var taken []int64
	err := d.Bun.NewSelect().
		Column("seat_id").
		Table("tickets").
		Where("session_id = ?", sessionID).
		Where("seat_id IN (?)", bun.In(seatIDs)).
		Scan(ctx, &taken)
	if err != nil {
		return nil, err
	}
	return taken, nil
}

// SessionSeatMap returns every seat of the session's hall with its
// availability for that session.
func (d *DB) SessionSeatMap(ctx context.Context, sessionID int64) ([]models.SeatStatus, error) {
	session, err := d.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var seats []models.Seat
	err = d.Bun.NewSelect().
		Model(&seats).
		Where("hall_id = ?", session.HallID).
		Order("row", "num").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	var taken []int64
	err = d.Bun.NewSelect().
		Column("seat_id").
		Table("tickets").
		Where("session_id = ?", sessionID).
		Scan(ctx, &taken)
	if err != nil {
		return nil, err
	}
	takenSet := make(map[int64]bool, len(taken))
	for _, id := range taken {
		takenSet[id] = true
	}

	statuses := make([]models.SeatStatus, len(seats))
	for i, s := range seats {
		statuses[i] = models.SeatStatus{SeatID: s.ID, Row: s.Row, Num: s.Num, Taken: takenSet[s.ID]}
	}
	return statuses, nil
}

// ---------------- order aggregate ----------------

// CreateOrderWithTickets persists the order and its tickets atomically.
// The order arrives with TotalAmount set to the subtotal; when
// useBonuses is set, the bonus debit happens here so that the ledger
// write commits or aborts with the order. A fully covered order leaves
// the transaction already PAID (no accrual: only gateway-confirmed
// payments earn points). A unique-constraint violation on the ticket
// insert is translated to ErrSeatTaken.
func (d *DB) CreateOrderWithTickets(ctx context.Context, order *models.Order, tickets []models.Ticket, useBonuses bool) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if useBonuses {
			used, err := bonus.Debit(ctx, tx, order.UserID, order.TotalAmount, order.ID)
			if err != nil {
				return err
			}
			order.BonusesUsed = used
			order.TotalAmount -= used
		}
		if order.TotalAmount == 0 {
			order.Status = models.OrderPaid
		}

		if _, err := tx.NewInsert().Model(order).Exec(ctx); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if _, err := tx.NewInsert().Model(&tickets).Exec(ctx); err != nil {
			if isUniqueViolation(err) {
				return ErrSeatTaken
			}
			return fmt.Errorf("insert tickets: %w", err)
		}
		return nil
	})
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetOrderByCorrelationID(ctx context.Context, correlationID string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("correlation_id = ?", correlationID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) TicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

// OrdersByUser returns the user's orders with their tickets, newest
// first.
func (d *DB) OrdersByUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return []models.OrderWithTickets{}, nil
	}

	orderIDs := make([]string, len(orders))
	for i, o := range orders {
		orderIDs[i] = o.ID
	}
	var tickets []models.Ticket
	err = d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id IN (?)", bun.In(orderIDs)).
		Order("order_id", "issued_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	byOrder := make(map[string][]models.Ticket)
	for _, t := range tickets {
		byOrder[t.OrderID] = append(byOrder[t.OrderID], t)
	}

	result := make([]models.OrderWithTickets, len(orders))
	for i, o := range orders {
		result[i] = models.OrderWithTickets{Order: o, Tickets: byOrder[o.ID]}
		if result[i].Tickets == nil {
			result[i].Tickets = []models.Ticket{}
		}
	}
	return result, nil
}

// ---------------- reconciliation ----------------

// ConfirmOrder transitions PENDING→PAID and credits the accrual, all in
// one transaction. The conditional update's affected-row count is the
// idempotency guard: a second confirmation (or one racing a cancel)
// matches zero rows and writes nothing. Returns the order and whether
// this call performed the transition.
func (d *DB) ConfirmOrder(ctx context.Context, orderID string) (*models.Order, bool, error) {
	var order *models.Order
	transitioned := false

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var current models.Order
		err := tx.NewSelect().
			Model(&current).
			Where("id = ?", orderID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		earned := bonus.AccrualFor(current.TotalAmount)
		res, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.OrderPaid).
			Set("bonuses_earned = ?", earned).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ? AND status = ?", orderID, models.OrderPending).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("confirm order: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			order = &current
			return nil
		}
		transitioned = true

		if earned > 0 {
			if err := bonus.Credit(ctx, tx, current.UserID, earned, models.BonusAccrual, current.ID); err != nil {
				return err
			}
		}

		current.Status = models.OrderPaid
		current.BonusesEarned = earned
		order = &current
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, transitioned, nil
}

// CancelOrder transitions PENDING→FAILED, refunds any redeemed bonuses
// in full and deletes the order's tickets so the seats free up
// immediately. Idempotent in the same way as ConfirmOrder. The freed
// seat ids are returned for hold release.
func (d *DB) CancelOrder(ctx context.Context, orderID string) (*models.Order, []int64, bool, error) {
	var order *models.Order
	var freed []int64
	transitioned := false

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var current models.Order
		err := tx.NewSelect().
			Model(&current).
			Where("id = ?", orderID).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrOrderNotFound
		}
		if err != nil {
			return err
		}

		res, err := tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.OrderFailed).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ? AND status = ?", orderID, models.OrderPending).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			order = &current
			return nil
		}
		transitioned = true

		if current.BonusesUsed > 0 {
			if err := bonus.Credit(ctx, tx, current.UserID, current.BonusesUsed, models.BonusRefunded, current.ID); err != nil {
				return err
			}
		}

		err = tx.NewSelect().
			Column("seat_id").
			Table("tickets").
			Where("order_id = ?", orderID).
			Scan(ctx, &freed)
		if err != nil {
			return err
		}
		if _, err := tx.NewDelete().
			Model((*models.Ticket)(nil)).
			Where("order_id = ?", orderID).
			Exec(ctx); err != nil {
			return fmt.Errorf("release tickets: %w", err)
		}

		current.Status = models.OrderFailed
		order = &current
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return order, freed, transitioned, nil
}

// StalePendingOrders returns PENDING orders created at or before the
// threshold, for the sweeper.
func (d *DB) StalePendingOrders(ctx context.Context, threshold time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ?", models.OrderPending).
		Where("created_at <= ?", threshold).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ---------------- bonus account ----------------

func (d *DB) BonusAccount(ctx context.Context, userID string) (*models.BonusAccount, error) {
	profile, err := d.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	account := &models.BonusAccount{Transactions: []models.BonusTransaction{}}
	if profile != nil {
		account.Balance = profile.BonusBalance
	}

	err = d.Bun.NewSelect().
		Model(&account.Transactions).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// OrderEmailDetails assembles what the ticket email needs: recipient,
// movie and venue names, session start and the seats bought.
func (d *DB) OrderEmailDetails(ctx context.Context, orderID string) (*models.OrderEmailDetails, error) {
	order, err := d.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	profile, err := d.GetProfile(ctx, order.UserID)
	if err != nil {
		return nil, err
	}
	session, err := d.GetSession(ctx, order.SessionID)
	if err != nil {
		return nil, err
	}
	movie, err := d.GetMovie(ctx, session.MovieID)
	if err != nil {
		return nil, err
	}

	var hall models.Hall
	if err := d.Bun.NewSelect().Model(&hall).Where("id = ?", session.HallID).Scan(ctx); err != nil {
		return nil, err
	}
	var cinema models.Cinema
	if err := d.Bun.NewSelect().Model(&cinema).Where("id = ?", hall.CinemaID).Scan(ctx); err != nil {
		return nil, err
	}

	details := &models.OrderEmailDetails{
		OrderID:    order.ID,
		MovieTitle: movie.Title,
		CinemaName: cinema.Name,
		HallName:   hall.Name,
		StartsAt:   session.StartsAt,
	}
	if profile != nil {
		details.Email = profile.Email
	}

	err = d.Bun.NewSelect().
		ColumnExpr("t.id AS ticket_id").
		ColumnExpr(`s."row" AS "row"`).
		ColumnExpr("s.num AS num").
		ColumnExpr("t.price AS price").
		TableExpr("tickets AS t").
		Join("JOIN seats AS s ON s.id = t.seat_id").
		Where("t.order_id = ?", orderID).
		OrderExpr(`s."row", s.num`).
		Scan(ctx, &details.Seats)
	if err != nil {
		return nil, err
	}
	return details, nil
}

// isUniqueViolation matches the constraint-violation shapes of the
// postgres and sqlite drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}
