// Package sweeper reclaims abandoned orders. An order whose buyer
// never completed payment holds seats hostage; past the pending
// timeout the sweeper cancels it through the same path a failed
// gateway callback takes, so bonuses refund and seats free up.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"cinema-ticketing/internal/logger"
	"cinema-ticketing/internal/models"

	"github.com/go-co-op/gocron/v2"
)

type Store interface {
	StalePendingOrders(ctx context.Context, threshold time.Time) ([]models.Order, error)
}

type Reconciler interface {
	CancelPayment(ctx context.Context, orderID string) error
}

type Sweeper struct {
	Store      Store
	Reconciler Reconciler
	Timeout    time.Duration
	Logger     *logger.Logger
}

func New(store Store, reconciler Reconciler, timeout time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{Store: store, Reconciler: reconciler, Timeout: timeout, Logger: log}
}

// Sweep cancels every order pending longer than the timeout. One
// failing order does not stop the rest; a cancel that loses a race
// against a late callback is a harmless no-op.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	threshold := time.Now().UTC().Add(-s.Timeout)
	stale, err := s.Store.StalePendingOrders(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("list stale orders: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	swept := 0
	for _, order := range stale {
		if err := s.Reconciler.CancelPayment(ctx, order.ID); err != nil {
			s.Logger.LogSweep(fmt.Sprintf("cancel stale order %s: %v", order.ID, err))
			continue
		}
		swept++
	}
	s.Logger.LogSweep(fmt.Sprintf("swept %d of %d stale orders", swept, len(stale)))
	return swept, nil
}

// Schedule runs Sweep on the given interval until the scheduler shuts
// down.
func (s *Sweeper) Schedule(sched gocron.Scheduler, interval time.Duration) (gocron.Job, error) {
	return sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			if _, err := s.Sweep(ctx); err != nil {
				s.Logger.LogSweep(fmt.Sprintf("sweep failed: %v", err))
			}
		}),
	)
}
