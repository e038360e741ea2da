package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cinema-ticketing/internal/order/db"
	"cinema-ticketing/internal/payment/liqpay"
)

// ConfirmPayment finalizes a successful payment: PENDING→PAID with the
// accrual credited. Safe to call any number of times; only the call
// that performs the transition publishes events and sends the ticket
// email.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID string) error {
	order, transitioned, err := s.DB.ConfirmOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !transitioned {
		s.Logger.LogOrder("CONFIRM", orderID, fmt.Sprintf("already %s, nothing to do", order.Status))
		return nil
	}

	s.Logger.LogOrder("CONFIRM", orderID, fmt.Sprintf("paid %d, earned %d bonuses", order.TotalAmount, order.BonusesEarned))
	s.releaseOrderHolds(ctx, order.SessionID, orderID)
	s.publish(ctx, "order.paid", order)
	s.notifyPaid(ctx, order.ID)
	return nil
}

// CancelPayment finalizes a failed or abandoned payment: PENDING→FAILED
// with bonuses refunded and tickets deleted. Idempotent like
// ConfirmPayment.
func (s *OrderService) CancelPayment(ctx context.Context, orderID string) error {
	order, freed, transitioned, err := s.DB.CancelOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !transitioned {
		s.Logger.LogOrder("CANCEL", orderID, fmt.Sprintf("already %s, nothing to do", order.Status))
		return nil
	}

	s.Logger.LogOrder("CANCEL", orderID, fmt.Sprintf("failed, %d seats released, %d bonuses refunded", len(freed), order.BonusesUsed))
	if len(freed) > 0 {
		s.releaseHolds(ctx, order.SessionID, freed)
	}
	s.publish(ctx, "order.cancelled", order)
	return nil
}

// HandleCallback processes a gateway callback. Transport problems (bad
// signature, undecodable data) come back as *CallbackError so the
// handler can reject them; everything past the signature check is
// acknowledged to the gateway regardless of outcome, because retrying a
// business failure cannot fix it.
func (s *OrderService) HandleCallback(ctx context.Context, data, signature string) error {
	if !s.Gateway.VerifyCallback(data, signature) {
		return &CallbackError{Status: http.StatusBadRequest, Message: "invalid callback signature"}
	}
	callback, err := s.Gateway.DecodeCallback(data)
	if err != nil {
		return &CallbackError{Status: http.StatusBadRequest, Message: fmt.Sprintf("malformed callback payload: %v", err)}
	}

	order, err := s.DB.GetOrderByCorrelationID(ctx, callback.OrderID)
	if errors.Is(err, db.ErrOrderNotFound) {
		// Signed but unknown: most likely a replay for a purged order.
		s.Logger.LogPayment("CALLBACK", callback.OrderID, "no order for correlation id, acknowledging")
		return nil
	}
	if err != nil {
		s.Logger.LogPayment("CALLBACK", callback.OrderID, fmt.Sprintf("lookup failed: %v", err))
		return nil
	}

	switch {
	case liqpay.IsSuccess(callback.Status):
		if err := s.ConfirmPayment(ctx, order.ID); err != nil {
			s.Logger.LogPayment("CALLBACK", callback.OrderID, fmt.Sprintf("confirm failed: %v", err))
		}
	case liqpay.IsFailure(callback.Status):
		if err := s.CancelPayment(ctx, order.ID); err != nil {
			s.Logger.LogPayment("CALLBACK", callback.OrderID, fmt.Sprintf("cancel failed: %v", err))
		}
	default:
		// Intermediate statuses (processing, 3ds verification) carry no
		// transition; the gateway sends a final one later.
		s.Logger.LogPayment("CALLBACK", callback.OrderID, fmt.Sprintf("ignoring intermediate status %q", callback.Status))
	}
	return nil
}

// releaseOrderHolds drops the redis holds for an order's seats after a
// confirmation, when the caller does not already know which seats were
// involved.
func (s *OrderService) releaseOrderHolds(ctx context.Context, sessionID int64, orderID string) {
	tickets, err := s.DB.TicketsByOrder(ctx, orderID)
	if err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("resolve seats for order %s: %v", orderID, err))
		return
	}
	seatIDs := make([]int64, len(tickets))
	for i, t := range tickets {
		seatIDs[i] = t.SeatID
	}
	if len(seatIDs) > 0 {
		s.releaseHolds(ctx, sessionID, seatIDs)
	}
}
