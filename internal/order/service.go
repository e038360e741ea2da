// Package order implements the booking core: order placement with seat
// and bonus resolution, payment checkout preparation, and the
// reconciliation of gateway outcomes back onto orders.
package order

import (
	"context"
	"fmt"
	"time"

	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"
	"cinema-ticketing/internal/order/db"
	"cinema-ticketing/internal/payment/liqpay"

	"github.com/google/uuid"
)

type DBLayer interface {
	GetSession(ctx context.Context, id int64) (*models.Session, error)
	GetMovie(ctx context.Context, id int64) (*models.Movie, error)
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	SeatsInHall(ctx context.Context, hallID int64, seatIDs []int64) ([]models.Seat, error)
	TakenSeatIDs(ctx context.Context, sessionID int64, seatIDs []int64) ([]int64, error)
	SessionSeatMap(ctx context.Context, sessionID int64) ([]models.SeatStatus, error)
	CreateOrderWithTickets(ctx context.Context, order *models.Order, tickets []models.Ticket, useBonuses bool) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetOrderByCorrelationID(ctx context.Context, correlationID string) (*models.Order, error)
	TicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	OrdersByUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error)
	ConfirmOrder(ctx context.Context, orderID string) (*models.Order, bool, error)
	CancelOrder(ctx context.Context, orderID string) (*models.Order, []int64, bool, error)
	BonusAccount(ctx context.Context, userID string) (*models.BonusAccount, error)
}

// SeatHold is the advisory redis layer. A refused hold short-circuits
// an order that would lose the race anyway; correctness does not depend
// on it.
type SeatHold interface {
	HoldSeats(ctx context.Context, sessionID int64, seatIDs []int64, orderID string) (bool, error)
	ReleaseSeats(ctx context.Context, sessionID int64, seatIDs []int64) error
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, topic string, order *models.Order) error
}

type Notifier interface {
	OrderPaid(ctx context.Context, orderID string) error
}

type OrderService struct {
	DB       DBLayer
	Holds    SeatHold
	Gateway  *liqpay.Client
	Events   EventPublisher
	Notifier Notifier
	Currency string
	Logger   *logger.Logger
}

func NewOrderService(dbl DBLayer, holds SeatHold, gateway *liqpay.Client, events EventPublisher, notifier Notifier, currency string, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:       dbl,
		Holds:    holds,
		Gateway:  gateway,
		Events:   events,
		Notifier: notifier,
		Currency: currency,
		Logger:   log,
	}
}

// CreateOrder places an order for the given seats. On the happy path
// the returned response carries a signed checkout payload; when bonuses
// cover the full price the order comes back already PAID and no payload
// is issued.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req models.CreateOrderRequest) (*models.CreateOrderResponse, error) {
	if len(req.SeatIDs) == 0 {
		return nil, validationf("seat_ids must not be empty")
	}
	seen := make(map[int64]bool, len(req.SeatIDs))
	for _, id := range req.SeatIDs {
		if seen[id] {
			return nil, validationf("duplicate seat id %d in request", id)
		}
		seen[id] = true
	}

	session, err := s.DB.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, validationf("session %d is not open for booking", session.ID)
	}

	if err := s.checkAgeGate(ctx, userID, session); err != nil {
		return nil, err
	}

	// Resolve the seats against the session's hall and pre-check
	// availability. The unique constraint catches what this misses.
	seats, err := s.DB.SeatsInHall(ctx, session.HallID, req.SeatIDs)
	if err != nil {
		return nil, err
	}
	if len(seats) != len(req.SeatIDs) {
		return nil, validationf("one or more seats do not belong to the session hall")
	}
	taken, err := s.DB.TakenSeatIDs(ctx, session.ID, req.SeatIDs)
	if err != nil {
		return nil, err
	}
	if len(taken) > 0 {
		return nil, db.ErrSeatTaken
	}

	orderID := uuid.NewString()
	held, err := s.Holds.HoldSeats(ctx, session.ID, req.SeatIDs, orderID)
	if err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("seat hold unavailable, proceeding without: %v", err))
	} else if !held {
		return nil, db.ErrSeatTaken
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:            orderID,
		UserID:        userID,
		SessionID:     session.ID,
		Status:        models.OrderPending,
		TotalAmount:   session.Price * int64(len(req.SeatIDs)),
		CorrelationID: uuid.NewString(),
		CreatedAt:     now,
	}
	tickets := make([]models.Ticket, len(req.SeatIDs))
	for i, seatID := range req.SeatIDs {
		tickets[i] = models.Ticket{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			SessionID: session.ID,
			SeatID:    seatID,
			Price:     session.Price,
			IssuedAt:  now,
		}
	}

	if err := s.DB.CreateOrderWithTickets(ctx, order, tickets, req.UseBonuses); err != nil {
		s.releaseHolds(ctx, session.ID, req.SeatIDs)
		return nil, err
	}
	s.Logger.LogOrder("CREATE", order.ID, fmt.Sprintf("order placed: %d seats, total %d, bonuses %d", len(tickets), order.TotalAmount, order.BonusesUsed))
	s.publish(ctx, "order.created", order)

	if order.Status == models.OrderPaid {
		// Fully covered by bonuses: no gateway round-trip.
		s.publish(ctx, "order.paid", order)
		s.releaseHolds(ctx, session.ID, req.SeatIDs)
		s.notifyPaid(ctx, order.ID)
		return &models.CreateOrderResponse{Order: order, PaidByBonuses: true}, nil
	}

	checkout, err := s.Gateway.BuildCheckout(order.TotalAmount, s.Currency, fmt.Sprintf("Tickets for order %s", order.ID), order.CorrelationID)
	if err != nil {
		// The order stays PENDING; the sweeper reclaims it if the
		// client never retries payment.
		s.Logger.LogPayment("CHECKOUT", order.CorrelationID, fmt.Sprintf("failed to build checkout: %v", err))
		return nil, fmt.Errorf("build checkout: %w", err)
	}

	return &models.CreateOrderResponse{
		Order: order,
		Payment: &models.CheckoutPayload{
			Data:      checkout.Data,
			Signature: checkout.Signature,
		},
	}, nil
}

// checkAgeGate enforces the movie's age category. A profile birth date
// is required for 16+ screenings; whenever a birth date is on file the
// viewer's age at the session start must meet the category.
func (s *OrderService) checkAgeGate(ctx context.Context, userID string, session *models.Session) error {
	movie, err := s.DB.GetMovie(ctx, session.MovieID)
	if err != nil {
		return err
	}
	if movie.AgeCategory == 0 {
		return nil
	}

	profile, err := s.DB.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	var birthDate *time.Time
	if profile != nil {
		birthDate = profile.BirthDate
	}
	if birthDate == nil {
		if movie.AgeCategory >= 16 {
			return &ForbiddenError{Message: fmt.Sprintf("a verified birth date is required for %d+ screenings", movie.AgeCategory)}
		}
		return nil
	}
	if ageAt(*birthDate, session.StartsAt) < movie.AgeCategory {
		return &ForbiddenError{Message: fmt.Sprintf("viewer does not meet the %d+ age category", movie.AgeCategory)}
	}
	return nil
}

// ageAt is whole years at the given moment, counting birthdays.
func ageAt(birthDate, at time.Time) int {
	years := at.Year() - birthDate.Year()
	anniversary := birthDate.AddDate(years, 0, 0)
	if anniversary.After(at) {
		years--
	}
	return years
}

// GetOrder returns the order with its tickets. Orders are visible only
// to their owner.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*models.OrderWithTickets, error) {
	order, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, &ForbiddenError{Message: "order belongs to another user"}
	}
	tickets, err := s.DB.TicketsByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &models.OrderWithTickets{Order: *order, Tickets: tickets}, nil
}

func (s *OrderService) OrdersByUser(ctx context.Context, userID string) ([]models.OrderWithTickets, error) {
	return s.DB.OrdersByUser(ctx, userID)
}

func (s *OrderService) SessionSeats(ctx context.Context, sessionID int64) ([]models.SeatStatus, error) {
	return s.DB.SessionSeatMap(ctx, sessionID)
}

func (s *OrderService) BonusAccount(ctx context.Context, userID string) (*models.BonusAccount, error) {
	return s.DB.BonusAccount(ctx, userID)
}

func (s *OrderService) publish(ctx context.Context, topic string, order *models.Order) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishOrderEvent(ctx, topic, order); err != nil {
		s.Logger.Warn("KAFKA", fmt.Sprintf("publish %s for order %s: %v", topic, order.ID, err))
	}
}

func (s *OrderService) notifyPaid(ctx context.Context, orderID string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.OrderPaid(ctx, orderID); err != nil {
		s.Logger.Warn("MAIL", fmt.Sprintf("ticket email for order %s: %v", orderID, err))
	}
}

func (s *OrderService) releaseHolds(ctx context.Context, sessionID int64, seatIDs []int64) {
	if err := s.Holds.ReleaseSeats(ctx, sessionID, seatIDs); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("release holds for session %d: %v", sessionID, err))
	}
}
