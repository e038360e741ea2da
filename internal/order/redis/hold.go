// Package redis implements advisory seat holds. A hold keeps a seat
// out of new orders while its buyer is at the payment page; the
// database unique constraint remains the source of truth, so an
// expired or lost hold can never double-sell a seat.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

type SeatHolds struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewSeatHolds(client *redis.Client, ttl time.Duration) *SeatHolds {
	return &SeatHolds{Client: client, TTL: ttl}
}

func holdKey(sessionID, seatID int64) string {
	return fmt.Sprintf("hold:session:%d:seat:%d", sessionID, seatID)
}

// HoldSeats takes a hold on every seat or none. A refused hold releases
// whatever it acquired so a partially lost race leaves no debris.
func (h *SeatHolds) HoldSeats(ctx context.Context, sessionID int64, seatIDs []int64, orderID string) (bool, error) {
	var acquired []int64
	for _, seatID := range seatIDs {
		ok, err := h.Client.SetNX(ctx, holdKey(sessionID, seatID), orderID, h.TTL).Result()
		if err != nil {
			_ = h.ReleaseSeats(ctx, sessionID, acquired)
			return false, fmt.Errorf("hold seat %d: %w", seatID, err)
		}
		if !ok {
			_ = h.ReleaseSeats(ctx, sessionID, acquired)
			return false, nil
		}
		acquired = append(acquired, seatID)
	}
	return true, nil
}

func (h *SeatHolds) ReleaseSeats(ctx context.Context, sessionID int64, seatIDs []int64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	keys := make([]string, len(seatIDs))
	for i, seatID := range seatIDs {
		keys[i] = holdKey(sessionID, seatID)
	}
	if err := h.Client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("release holds: %w", err)
	}
	return nil
}

// HeldBy returns the order holding the seat, or "" when it is free.
func (h *SeatHolds) HeldBy(ctx context.Context, sessionID, seatID int64) (string, error) {
	val, err := h.Client.Get(ctx, holdKey(sessionID, seatID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}
